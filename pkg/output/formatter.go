package output

import (
	"io"

	"github.com/sdejongh/filenorris/pkg/models"
)

// EventType identifies a progress notification
type EventType string

const (
	EventFileStart     EventType = "file_start"
	EventFileProgress  EventType = "file_progress"
	EventFileComplete  EventType = "file_complete"
	EventFileError     EventType = "file_error"
	EventFileCancelled EventType = "file_cancelled"
)

// ProgressUpdate represents a progress notification during an upload.
// BytesWritten and TotalBytes describe the current job, OverallBytes and
// OverallTotal the whole operation.
type ProgressUpdate struct {
	Type         EventType
	JobID        string
	FilePath     string
	BytesWritten int64
	TotalBytes   int64
	OverallBytes int64
	OverallTotal int64
	CurrentFile  int
	TotalFiles   int
	Error        error
}

// Formatter defines the interface for output formatting
// Implementations include human-readable, progress bar and JSON formatters
type Formatter interface {
	// Start initializes the formatter for a new upload operation
	Start(writer io.Writer, totalFiles int, totalBytes int64) error

	// Progress reports progress during the upload
	Progress(update ProgressUpdate) error

	// Complete finalizes output and displays summary
	Complete(report *models.UploadReport) error

	// Error reports an error outside of any job
	Error(err error) error

	// Name returns the formatter name
	Name() string
}

// New returns the formatter for name ("human", "progress" or "json")
func New(name string) Formatter {
	switch name {
	case "json":
		return NewJSONFormatter()
	case "progress":
		return NewProgressFormatter()
	default:
		return NewHumanFormatter()
	}
}
