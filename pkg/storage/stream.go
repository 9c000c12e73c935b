package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/thumbnail"
)

// ctxReader stops reading once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, &ctxReader{ctx: ctx, r: src})
}

// releaseReader closes the stream and then runs release, once
type releaseReader struct {
	io.ReadSeekCloser
	release func()
	closed  bool
}

func (r *releaseReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.ReadSeekCloser.Close()
	if r.release != nil {
		r.release()
	}
	return err
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// thumbnailOrContent renders a preview from an open file. If the file is not
// a decodable image, the same stream is rewound and handed back as content.
func thumbnailOrContent(ctx context.Context, f io.ReadSeekCloser, size, quality int, logger logging.Logger, path string) (io.ReadCloser, error) {
	data, err := thumbnail.Generate(f, size, quality)
	if err == nil {
		f.Close()
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		f.Close()
		return nil, ctxErr
	}

	logger.Debug(ctx, "Thumbnail unavailable, using original content", logging.Fields{
		"path":   path,
		"reason": err.Error(),
	})

	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		f.Close()
		return nil, nil
	}
	return f, nil
}
