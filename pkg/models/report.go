package models

import (
	"time"
)

// JobStatus is the state of a single upload job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// UploadJob tracks one file (or one folder) sent to a backend
type UploadJob struct {
	ID          string
	Name        string
	Destination string
	Size        int64
	BytesSent   int64
	Status      JobStatus
	StartedAt   time.Time
	FinishedAt  time.Time

	// Err is retained for later inspection when Status is JobFailed
	Err error
}

// ErrorMessage returns the retained error text, empty on success
func (j *UploadJob) ErrorMessage() string {
	if j.Err == nil {
		return ""
	}
	return j.Err.Error()
}

// Duration returns the elapsed time of a finished job
func (j *UploadJob) Duration() time.Duration {
	if j.FinishedAt.IsZero() || j.StartedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// UploadReport represents the results of an upload operation
type UploadReport struct {
	OperationID string
	StorageID   string
	Destination string

	// Timing
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Stats UploadStats
	Jobs  []*UploadJob

	// Overall status
	Status UploadStatus
}

// UploadStats holds upload metrics
type UploadStats struct {
	FilesTotal       int
	FilesUploaded    int
	FilesFailed      int
	FilesCancelled   int
	BytesTotal       int64
	BytesTransferred int64
}

// UploadStatus represents the overall result
type UploadStatus string

const (
	// StatusSuccess indicates all uploads completed successfully
	StatusSuccess UploadStatus = "success"
	// StatusPartial indicates some uploads failed
	StatusPartial UploadStatus = "partial"
	// StatusFailed indicates every upload failed
	StatusFailed UploadStatus = "failed"
	// StatusCancelled indicates the operation was cancelled
	StatusCancelled UploadStatus = "cancelled"
)

// ExitCode returns the appropriate exit code for the upload status
func (s UploadStatus) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPartial:
		return 1
	case StatusFailed:
		return 2
	case StatusCancelled:
		return 3
	default:
		return 2
	}
}

// Finalize computes Duration and Status from the recorded jobs
func (r *UploadReport) Finalize(end time.Time) {
	r.EndTime = end
	r.Duration = end.Sub(r.StartTime)

	switch {
	case r.Stats.FilesCancelled > 0:
		r.Status = StatusCancelled
	case r.Stats.FilesFailed == 0:
		r.Status = StatusSuccess
	case r.Stats.FilesUploaded == 0:
		r.Status = StatusFailed
	default:
		r.Status = StatusPartial
	}
}
