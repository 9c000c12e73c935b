package upload

import (
	"io"
	"time"
)

// Progress reporting thresholds
const (
	progressReportInterval = 50 * time.Millisecond // Minimum time between progress reports
	progressReportBytes    = 64 * 1024             // Minimum bytes between reports (64KB)
)

// progressReader wraps an io.Reader to report progress. onProgress receives
// the bytes read since the previous report.
type progressReader struct {
	reader         io.Reader
	read           int64
	lastReported   int64
	lastReportTime time.Time
	onProgress     func(delta int64)
}

func newProgressReader(r io.Reader, onProgress func(delta int64)) *progressReader {
	return &progressReader{
		reader:         r,
		lastReportTime: time.Now(),
		onProgress:     onProgress,
	}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.read += int64(n)

	// Report when 64KB or 50ms have passed, and always on completion or error
	if pr.onProgress != nil && pr.read > pr.lastReported {
		if pr.read-pr.lastReported >= progressReportBytes ||
			time.Since(pr.lastReportTime) >= progressReportInterval ||
			err != nil {
			pr.flush()
		}
	}
	return n, err
}

// flush reports any bytes not yet reported
func (pr *progressReader) flush() {
	if pr.onProgress == nil || pr.read == pr.lastReported {
		return
	}
	pr.onProgress(pr.read - pr.lastReported)
	pr.lastReported = pr.read
	pr.lastReportTime = time.Now()
}
