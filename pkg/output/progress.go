package output

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/sdejongh/filenorris/pkg/models"
)

// progressTemplate shows the current file above the aggregate counters
const progressTemplate = `{{string . "index"}} {{string . "file" | printf "%-40.40s"}} {{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{speed . }}`

// getUpdateInterval returns the progress refresh interval based on OS
// Windows terminals have higher latency with ANSI sequences
func getUpdateInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return 300 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// ProgressFormatter draws a single aggregate progress bar labelled with the
// file being uploaded, then prints the human summary
type ProgressFormatter struct {
	mu        sync.Mutex
	writer    io.Writer
	bar       *pb.ProgressBar
	termWidth int
	summary   *HumanFormatter
}

// NewProgressFormatter creates a new progress bar formatter
func NewProgressFormatter() *ProgressFormatter {
	return &ProgressFormatter{summary: NewHumanFormatter()}
}

// Start initializes the formatter
func (f *ProgressFormatter) Start(writer io.Writer, totalFiles int, totalBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if writer == nil {
		writer = os.Stdout
	}
	f.writer = writer

	// Detect terminal width to prevent line wrapping
	if file, ok := writer.(*os.File); ok {
		if width, _, err := term.GetSize(int(file.Fd())); err == nil && width > 0 {
			f.termWidth = width
		}
	}
	if f.termWidth == 0 {
		f.termWidth = 120
	}

	if totalBytes < 0 {
		totalBytes = 0
	}
	f.bar = pb.New64(totalBytes).
		SetTemplateString(progressTemplate).
		SetWriter(writer).
		SetRefreshRate(getUpdateInterval()).
		SetMaxWidth(f.termWidth).
		Set(pb.Bytes, true).
		Set("index", "").
		Set("file", "").
		Start()

	return nil
}

// Progress updates the bar from job events
func (f *ProgressFormatter) Progress(update ProgressUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bar == nil {
		return nil
	}

	switch update.Type {
	case EventFileStart:
		f.bar.Set("index", fmt.Sprintf("[%d/%d]", update.CurrentFile, update.TotalFiles))
		f.bar.Set("file", update.FilePath)
	case EventFileProgress, EventFileComplete:
		f.bar.SetCurrent(update.OverallBytes)
	case EventFileError, EventFileCancelled:
		// failed bytes are not part of the transfer
		if update.OverallTotal > 0 {
			f.bar.SetTotal(update.OverallTotal)
		}
		f.bar.SetCurrent(update.OverallBytes)
	}

	return nil
}

// Complete stops the bar and prints the summary
func (f *ProgressFormatter) Complete(report *models.UploadReport) error {
	f.mu.Lock()
	if f.bar != nil {
		f.bar.Set("file", "done")
		f.bar.Finish()
		f.bar = nil
	}
	w := f.writer
	f.mu.Unlock()

	f.summary.writer = w
	return f.summary.Complete(report)
}

// Error reports an error
func (f *ProgressFormatter) Error(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writer != nil {
		fmt.Fprintf(f.writer, "\nError: %v\n", err)
	}
	return nil
}

// Name returns the formatter name
func (f *ProgressFormatter) Name() string {
	return "progress"
}
