package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sdejongh/filenorris/pkg/models"
)

// HumanFormatter formats output in human-readable format
type HumanFormatter struct {
	writer     io.Writer
	totalFiles int
	totalBytes int64
	startTime  time.Time
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// Start initializes the formatter
func (f *HumanFormatter) Start(writer io.Writer, totalFiles int, totalBytes int64) error {
	f.writer = writer
	f.totalFiles = totalFiles
	f.totalBytes = totalBytes
	f.startTime = time.Now()

	if writer != nil {
		fmt.Fprintf(writer, "Starting upload: %d files, %s total\n",
			totalFiles, formatBytes(totalBytes))
	}

	return nil
}

// Progress reports progress during the upload
func (f *HumanFormatter) Progress(update ProgressUpdate) error {
	if f.writer == nil {
		return nil
	}

	switch update.Type {
	case EventFileStart:
		fmt.Fprintf(f.writer, "[%d/%d] Uploading %s (%s)...\n",
			update.CurrentFile, update.TotalFiles,
			update.FilePath, formatBytes(update.TotalBytes))

	case EventFileComplete:
		fmt.Fprintf(f.writer, "[%d/%d] ✓ %s (%s)\n",
			update.CurrentFile, update.TotalFiles,
			update.FilePath, formatBytes(update.BytesWritten))

	case EventFileError:
		fmt.Fprintf(f.writer, "[%d/%d] ✗ %s: %v\n",
			update.CurrentFile, update.TotalFiles,
			update.FilePath, update.Error)

	case EventFileCancelled:
		fmt.Fprintf(f.writer, "[%d/%d] - %s: cancelled\n",
			update.CurrentFile, update.TotalFiles, update.FilePath)
	}

	return nil
}

// Complete finalizes output and displays summary
func (f *HumanFormatter) Complete(report *models.UploadReport) error {
	if f.writer == nil {
		f.writer = io.Discard
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Upload completed in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Summary:\n")
	fmt.Fprintf(f.writer, "  Destination:      %s\n", displayPath(report.Destination))
	fmt.Fprintf(f.writer, "  Files uploaded:   %d/%d\n", report.Stats.FilesUploaded, report.Stats.FilesTotal)
	fmt.Fprintf(f.writer, "  Files failed:     %d\n", report.Stats.FilesFailed)
	if report.Stats.FilesCancelled > 0 {
		fmt.Fprintf(f.writer, "  Files cancelled:  %d\n", report.Stats.FilesCancelled)
	}
	fmt.Fprintf(f.writer, "  Data:             %s\n", formatBytes(report.Stats.BytesTransferred))

	if report.Duration.Seconds() > 0 {
		avgSpeed := float64(report.Stats.BytesTransferred) / report.Duration.Seconds()
		fmt.Fprintf(f.writer, "  Average speed:    %s/s\n", formatBytes(int64(avgSpeed)))
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Status: %s\n", report.Status)

	var failed []*models.UploadJob
	for _, job := range report.Jobs {
		if job.Status == models.JobFailed {
			failed = append(failed, job)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(f.writer, "\nErrors:\n")
		for _, job := range failed {
			fmt.Fprintf(f.writer, "  %s: %s\n", job.Name, job.ErrorMessage())
		}
	}

	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(err error) error {
	if f.writer != nil {
		fmt.Fprintf(f.writer, "Error: %v\n", err)
	}
	return nil
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

// formatBytes formats bytes in IEC units
func formatBytes(bytes int64) string {
	if bytes < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(bytes))
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
