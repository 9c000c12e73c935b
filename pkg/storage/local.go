package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
)

// Local is a filesystem-based repository rooted at a directory
type Local struct {
	rootPath string
	opts     Options
}

// NewLocal creates a new local filesystem repository
func NewLocal(rootPath string, opts Options) (*Local, error) {
	absPath, err := filepath.Abs(platform.ExpandHome(rootPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	return &Local{rootPath: absPath, opts: opts.withDefaults()}, nil
}

// Root returns the absolute root directory
func (l *Local) Root() string {
	return l.rootPath
}

func (l *Local) resolve(p string) (rel, full string, err error) {
	rel, err = platform.CleanPath(p)
	if err != nil {
		return "", "", err
	}
	return rel, filepath.Join(l.rootPath, filepath.FromSlash(rel)), nil
}

func notFound(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, models.ErrNotFound)
	}
	return err
}

// GetFiles lists the immediate children of path
func (l *Local) GetFiles(ctx context.Context, path string) ([]models.FileItem, error) {
	rel, full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, notFound(path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, models.ErrNotDirectory)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	items := make([]models.FileItem, 0, len(entries))
	for _, entry := range entries {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info, err := entry.Info()
		if err != nil {
			// Removed since ReadDir
			continue
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if target, err := os.Stat(filepath.Join(full, entry.Name())); err == nil {
				info = target
			}
		}

		items = append(items, models.NewFileItem(
			entry.Name(),
			platform.JoinPath(rel, entry.Name()),
			info.IsDir(),
			info.Size(),
			info.ModTime(),
		))
	}

	return items, nil
}

func (l *Local) openFile(path string) (*os.File, error) {
	_, full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, notFound(path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory: %w", path, models.ErrInvalidPath)
	}
	return f, nil
}

// GetFileContent opens a file for reading
func (l *Local) GetFileContent(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.openFile(path)
}

// GetThumbnail decodes the file as an image and scales it to size
func (l *Local) GetThumbnail(ctx context.Context, path string, size int) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := l.openFile(path)
	if err != nil {
		l.opts.Logger.Debug(ctx, "No thumbnail", logging.Fields{"path": path, "reason": err.Error()})
		return nil, nil
	}
	return thumbnailOrContent(ctx, f, size, l.opts.ThumbnailQuality, l.opts.Logger, path)
}

// UploadFile writes content as destination/fileName
func (l *Local) UploadFile(ctx context.Context, destination, fileName string, content io.Reader) error {
	dir, err := platform.CleanPath(destination)
	if err != nil {
		return err
	}
	return writeFile(ctx, localTree{l}, dir, fileName, content)
}

// UploadFolder creates destination/folderName holding every entry
func (l *Local) UploadFolder(ctx context.Context, destination, folderName string, files []models.UploadEntry) error {
	dir, err := platform.CleanPath(destination)
	if err != nil {
		return err
	}
	return writeFolder(ctx, localTree{l}, dir, folderName, files)
}

// Close releases any resources (no-op for local filesystem)
func (l *Local) Close() error {
	return nil
}

// localTree maps cleaned paths below the root to the filesystem
type localTree struct {
	l *Local
}

func (t localTree) full(p string) string {
	return filepath.Join(t.l.rootPath, filepath.FromSlash(p))
}

func (t localTree) stat(p string) (fs.FileInfo, error) {
	return os.Stat(t.full(p))
}

func (t localTree) mkdirAll(p string) error {
	return os.MkdirAll(t.full(p), 0755)
}

func (t localTree) create(p string) (io.WriteCloser, error) {
	return os.Create(t.full(p))
}

func (t localTree) rename(oldpath, newpath string) error {
	return os.Rename(t.full(oldpath), t.full(newpath))
}

func (t localTree) remove(p string) error {
	return os.Remove(t.full(p))
}

func (t localTree) removeAll(p string) error {
	return os.RemoveAll(t.full(p))
}
