// Package upload sends local files and folders to a storage, one job at a
// time, reporting per-file and aggregate progress.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/output"
	"github.com/sdejongh/filenorris/pkg/ratelimit"
	"github.com/sdejongh/filenorris/pkg/storage"
)

// Source is one file to upload
type Source struct {
	// Name is the file name at the destination
	Name string

	// Size in bytes, -1 when unknown
	Size int64

	// Open returns the content stream; the coordinator closes it
	Open func() (io.ReadCloser, error)
}

// LocalFile describes a local regular file as a Source
func LocalFile(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%s: is a directory", path)
	}
	return Source{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Options configure a Coordinator
type Options struct {
	// StorageID is recorded in reports
	StorageID string

	// Formatter receives progress events; nil disables reporting
	Formatter output.Formatter

	// Output is handed to the formatter
	Output io.Writer

	// Limiter caps upload bandwidth; nil means unlimited
	Limiter *ratelimit.Limiter

	// Exclude holds glob patterns skipped by folder uploads
	Exclude []string

	Logger logging.Logger
}

// Coordinator runs uploads sequentially against a repository
type Coordinator struct {
	opts Options
}

// New creates a coordinator
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logging.NewNullLogger()
	}
	return &Coordinator{opts: opts}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// run tracks one operation
type run struct {
	c         *Coordinator
	report    *models.UploadReport
	sent      int64
	remaining int64
}

func (c *Coordinator) newRun(destination string) *run {
	return &run{
		c: c,
		report: &models.UploadReport{
			OperationID: uuid.New().String(),
			StorageID:   c.opts.StorageID,
			Destination: destination,
			StartTime:   time.Now(),
		},
	}
}

func (r *run) emit(update output.ProgressUpdate) {
	if r.c.opts.Formatter == nil {
		return
	}
	update.OverallBytes = r.sent
	update.OverallTotal = r.report.Stats.BytesTotal
	update.TotalFiles = len(r.report.Jobs)
	if err := r.c.opts.Formatter.Progress(update); err != nil {
		r.c.opts.Logger.Debug(context.Background(), "progress formatter failed", logging.Fields{"error": err.Error()})
	}
}

func (r *run) start() {
	if f := r.c.opts.Formatter; f != nil {
		if err := f.Start(r.c.opts.Output, r.report.Stats.FilesTotal, r.report.Stats.BytesTotal); err != nil {
			r.c.opts.Logger.Debug(context.Background(), "progress formatter failed", logging.Fields{"error": err.Error()})
		}
	}
}

func (r *run) finish() *models.UploadReport {
	r.report.Finalize(time.Now())
	if f := r.c.opts.Formatter; f != nil {
		if err := f.Complete(r.report); err != nil {
			r.c.opts.Logger.Debug(context.Background(), "progress formatter failed", logging.Fields{"error": err.Error()})
		}
	}
	return r.report
}

// stream wraps content with bandwidth limiting and progress accounting
func (r *run) stream(ctx context.Context, job *models.UploadJob, index int, content io.Reader) *progressReader {
	limited := ratelimit.NewReader(ctx, content, r.c.opts.Limiter)
	return newProgressReader(limited, func(delta int64) {
		job.BytesSent += delta
		r.sent += delta
		r.emit(output.ProgressUpdate{
			Type:         output.EventFileProgress,
			JobID:        job.ID,
			FilePath:     job.Name,
			BytesWritten: job.BytesSent,
			TotalBytes:   job.Size,
			CurrentFile:  index,
		})
	})
}

// settle records the outcome of job. Bytes of failed jobs are withdrawn
// from the aggregate counters.
func (r *run) settle(ctx context.Context, job *models.UploadJob, index, files int, err error) {
	job.FinishedAt = time.Now()
	stats := &r.report.Stats
	update := output.ProgressUpdate{
		JobID:       job.ID,
		FilePath:    job.Name,
		TotalBytes:  job.Size,
		CurrentFile: index,
	}

	switch {
	case err == nil:
		job.Status = models.JobSucceeded
		stats.FilesUploaded += files
		stats.BytesTransferred += job.BytesSent
		update.Type = output.EventFileComplete
		update.BytesWritten = job.BytesSent
		r.c.opts.Logger.Info(ctx, "upload complete", logging.Fields{
			"job_id": job.ID,
			"name":   job.Name,
			"bytes":  job.BytesSent,
		})

	case isCanceled(err):
		job.Status = models.JobCancelled
		job.Err = err
		stats.FilesCancelled += files
		r.withdraw(job)
		update.Type = output.EventFileCancelled
		update.Error = err

	default:
		job.Status = models.JobFailed
		job.Err = err
		stats.FilesFailed += files
		r.withdraw(job)
		update.Type = output.EventFileError
		update.Error = err
		r.c.opts.Logger.Error(ctx, "upload failed", err, logging.Fields{
			"job_id":      job.ID,
			"name":        job.Name,
			"destination": job.Destination,
		})
	}

	r.emit(update)
}

func (r *run) withdraw(job *models.UploadJob) {
	r.sent -= job.BytesSent
	if job.Size > 0 {
		r.report.Stats.BytesTotal -= job.Size
	}
}

func newJob(name, destination string, size int64) *models.UploadJob {
	return &models.UploadJob{
		ID:          uuid.New().String(),
		Name:        name,
		Destination: destination,
		Size:        size,
		Status:      models.JobPending,
	}
}

// UploadFiles uploads every source into destination, one after the other.
// A failed file does not stop the following ones; once ctx is done the
// remaining jobs are marked cancelled. The report always carries every job,
// failed jobs keep their error.
func (c *Coordinator) UploadFiles(ctx context.Context, repo storage.FileRepository, destination string, sources []Source) (*models.UploadReport, error) {
	r := c.newRun(destination)
	for _, src := range sources {
		job := newJob(src.Name, destination, src.Size)
		r.report.Jobs = append(r.report.Jobs, job)
		r.report.Stats.FilesTotal++
		if src.Size > 0 {
			r.report.Stats.BytesTotal += src.Size
		}
	}

	ctx = logging.ContextWithFields(ctx, logging.Fields{
		"operation_id": r.report.OperationID,
		"storage_id":   c.opts.StorageID,
	})
	c.opts.Logger.Info(ctx, "upload started", logging.Fields{
		"destination": destination,
		"files":       len(sources),
	})

	r.start()
	for i, src := range sources {
		job := r.report.Jobs[i]
		index := i + 1

		if err := ctx.Err(); err != nil {
			r.settle(ctx, job, index, 1, err)
			continue
		}

		job.Status = models.JobRunning
		job.StartedAt = time.Now()
		r.emit(output.ProgressUpdate{
			Type:        output.EventFileStart,
			JobID:       job.ID,
			FilePath:    job.Name,
			TotalBytes:  job.Size,
			CurrentFile: index,
		})

		r.settle(ctx, job, index, 1, r.uploadOne(ctx, repo, destination, job, index, src))
	}

	return r.finish(), ctx.Err()
}

func (r *run) uploadOne(ctx context.Context, repo storage.FileRepository, destination string, job *models.UploadJob, index int, src Source) error {
	if err := platform.ValidateName(src.Name); err != nil {
		return err
	}
	if src.Open == nil {
		return fmt.Errorf("%s: no content", src.Name)
	}

	rc, err := src.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src.Name, err)
	}
	defer rc.Close()

	pr := r.stream(ctx, job, index, rc)
	err = repo.UploadFile(ctx, destination, src.Name, pr)
	pr.flush()
	return err
}

// UploadFolder uploads localDir as destination/<base name of localDir>.
// Files matching the exclude patterns are skipped. The repository creates
// the folder all-or-nothing, so the report holds a single job.
func (c *Coordinator) UploadFolder(ctx context.Context, repo storage.FileRepository, destination, localDir string) (*models.UploadReport, error) {
	localDir = filepath.Clean(platform.ExpandHome(localDir))
	entries, total, err := c.collect(localDir)
	if err != nil {
		return nil, err
	}

	r := c.newRun(destination)
	job := newJob(filepath.Base(localDir), destination, total)
	r.report.Jobs = append(r.report.Jobs, job)
	r.report.Stats.BytesTotal = total

	// one job, but stats count the files it carries; an empty folder is one
	files := max(len(entries), 1)
	r.report.Stats.FilesTotal = files

	ctx = logging.ContextWithFields(ctx, logging.Fields{
		"operation_id": r.report.OperationID,
		"storage_id":   c.opts.StorageID,
	})
	c.opts.Logger.Info(ctx, "folder upload started", logging.Fields{
		"source":      localDir,
		"destination": destination,
		"files":       len(entries),
		"bytes":       total,
	})

	r.start()
	if err := ctx.Err(); err != nil {
		r.settle(ctx, job, 1, files, err)
		return r.finish(), err
	}

	job.Status = models.JobRunning
	job.StartedAt = time.Now()
	r.emit(output.ProgressUpdate{
		Type:        output.EventFileStart,
		JobID:       job.ID,
		FilePath:    job.Name,
		TotalBytes:  job.Size,
		CurrentFile: 1,
	})

	var open []*progressReader
	for i := range entries {
		inner := entries[i].Open
		entries[i].Open = func() (io.ReadCloser, error) {
			rc, err := inner()
			if err != nil {
				return nil, err
			}
			pr := r.stream(ctx, job, 1, rc)
			open = append(open, pr)
			return readCloser{Reader: pr, Closer: rc}, nil
		}
	}

	err = repo.UploadFolder(ctx, destination, job.Name, entries)
	for _, pr := range open {
		pr.flush()
	}
	r.settle(ctx, job, 1, files, err)

	return r.finish(), ctx.Err()
}

type readCloser struct {
	io.Reader
	io.Closer
}

// collect walks localDir and returns its files with '/'-separated paths
func (c *Coordinator) collect(localDir string) ([]models.UploadEntry, int64, error) {
	info, err := os.Stat(localDir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat %s: %w", localDir, err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("%s: %w", localDir, models.ErrNotDirectory)
	}

	var entries []models.UploadEntry
	var total int64
	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == localDir {
			return nil
		}

		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if excluded(rel, c.opts.Exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		entries = append(entries, models.UploadEntry{
			RelativePath: rel,
			Size:         fi.Size(),
			Open:         func() (io.ReadCloser, error) { return os.Open(p) },
		})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan %s: %w", localDir, err)
	}
	return entries, total, nil
}
