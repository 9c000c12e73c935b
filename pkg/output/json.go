package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sdejongh/filenorris/pkg/models"
)

// JSONFormatter streams one JSON object per line for automation and scripting
type JSONFormatter struct {
	mu         sync.Mutex
	encoder    *json.Encoder
	totalFiles int
	totalBytes int64
}

// JSONEvent represents a single event in the JSON output stream
type JSONEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
}

// JSONStartData represents the data for a start event
type JSONStartData struct {
	TotalFiles int   `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}

// JSONFileData represents file-related event data
type JSONFileData struct {
	JobID        string `json:"job_id,omitempty"`
	Path         string `json:"path"`
	Index        int    `json:"index"`
	BytesWritten int64  `json:"bytes_written"`
	TotalBytes   int64  `json:"total_bytes"`
	OverallBytes int64  `json:"overall_bytes"`
	OverallTotal int64  `json:"overall_total"`
	Error        string `json:"error,omitempty"`
}

// JSONReportData represents the final report data
type JSONReportData struct {
	OperationID string        `json:"operation_id"`
	StorageID   string        `json:"storage_id,omitempty"`
	Destination string        `json:"destination"`
	Status      string        `json:"status"`
	Duration    string        `json:"duration"`
	DurationMs  int64         `json:"duration_ms"`
	Stats       JSONStatsData `json:"stats"`
	Jobs        []JSONJobData `json:"jobs"`
}

// JSONStatsData represents statistics in JSON format
type JSONStatsData struct {
	FilesTotal       int    `json:"files_total"`
	FilesUploaded    int    `json:"files_uploaded"`
	FilesFailed      int    `json:"files_failed"`
	FilesCancelled   int    `json:"files_cancelled"`
	BytesTotal       int64  `json:"bytes_total"`
	BytesTransferred int64  `json:"bytes_transferred"`
	AverageSpeed     int64  `json:"average_speed_bytes_per_sec,omitempty"`
	AverageSpeedStr  string `json:"average_speed,omitempty"`
}

// JSONJobData represents one upload job
type JSONJobData struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Size       int64  `json:"size"`
	BytesSent  int64  `json:"bytes_sent"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) emit(typ string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.encoder == nil {
		return nil
	}
	return f.encoder.Encode(JSONEvent{
		Timestamp: time.Now(),
		Type:      typ,
		Data:      data,
	})
}

// Start initializes the formatter
func (f *JSONFormatter) Start(writer io.Writer, totalFiles int, totalBytes int64) error {
	if writer == nil {
		writer = os.Stdout
	}
	f.mu.Lock()
	f.encoder = json.NewEncoder(writer)
	f.totalFiles = totalFiles
	f.totalBytes = totalBytes
	f.mu.Unlock()

	return f.emit("start", JSONStartData{
		TotalFiles: totalFiles,
		TotalBytes: totalBytes,
	})
}

// Progress writes every job event as it happens
func (f *JSONFormatter) Progress(update ProgressUpdate) error {
	data := JSONFileData{
		JobID:        update.JobID,
		Path:         update.FilePath,
		Index:        update.CurrentFile,
		BytesWritten: update.BytesWritten,
		TotalBytes:   update.TotalBytes,
		OverallBytes: update.OverallBytes,
		OverallTotal: update.OverallTotal,
	}
	if update.Error != nil {
		data.Error = update.Error.Error()
	}
	return f.emit(string(update.Type), data)
}

// Complete writes the final report event
func (f *JSONFormatter) Complete(report *models.UploadReport) error {
	var avgSpeed int64
	var avgSpeedStr string
	if report.Duration.Seconds() > 0 {
		avgSpeed = int64(float64(report.Stats.BytesTransferred) / report.Duration.Seconds())
		avgSpeedStr = formatBytes(avgSpeed) + "/s"
	}

	jobs := make([]JSONJobData, 0, len(report.Jobs))
	for _, job := range report.Jobs {
		jobs = append(jobs, JSONJobData{
			ID:         job.ID,
			Name:       job.Name,
			Status:     string(job.Status),
			Size:       job.Size,
			BytesSent:  job.BytesSent,
			DurationMs: job.Duration().Milliseconds(),
			Error:      job.ErrorMessage(),
		})
	}

	return f.emit("complete", JSONReportData{
		OperationID: report.OperationID,
		StorageID:   report.StorageID,
		Destination: report.Destination,
		Status:      string(report.Status),
		Duration:    report.Duration.Round(time.Millisecond).String(),
		DurationMs:  report.Duration.Milliseconds(),
		Stats: JSONStatsData{
			FilesTotal:       report.Stats.FilesTotal,
			FilesUploaded:    report.Stats.FilesUploaded,
			FilesFailed:      report.Stats.FilesFailed,
			FilesCancelled:   report.Stats.FilesCancelled,
			BytesTotal:       report.Stats.BytesTotal,
			BytesTransferred: report.Stats.BytesTransferred,
			AverageSpeed:     avgSpeed,
			AverageSpeedStr:  avgSpeedStr,
		},
		Jobs: jobs,
	})
}

// Error reports an error
func (f *JSONFormatter) Error(err error) error {
	return f.emit("error", map[string]string{
		"error": err.Error(),
	})
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}
