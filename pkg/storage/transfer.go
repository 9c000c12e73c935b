package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/google/uuid"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/models"
)

// treeWriter is the slice of a filesystem the upload helpers need. Paths are
// cleaned and '/'-separated; each backend maps them to its own form.
type treeWriter interface {
	stat(p string) (fs.FileInfo, error)
	mkdirAll(p string) error
	create(p string) (io.WriteCloser, error)
	rename(oldpath, newpath string) error
	remove(p string) error
	removeAll(p string) error
}

func stagingName(name string) string {
	return "." + name + ".partial-" + uuid.NewString()[:8]
}

func exists(w treeWriter, p string) (bool, error) {
	_, err := w.stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// requireDir checks that dir exists and is a directory
func requireDir(w treeWriter, dir string) error {
	if dir == "" {
		return nil
	}
	info, err := w.stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("destination %s: %w", dir, models.ErrNotFound)
		}
		return fmt.Errorf("failed to stat destination %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination %s: %w", dir, models.ErrNotDirectory)
	}
	return nil
}

// writeTo streams content into p, removing p again on failure
func writeTo(ctx context.Context, w treeWriter, p string, content io.Reader) error {
	out, err := w.create(p)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", p, err)
	}

	_, err = copyContext(ctx, out, content)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = w.remove(p)
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// writeFile stages content next to its final name and renames it into place,
// so readers never see a partially written file
func writeFile(ctx context.Context, w treeWriter, dir, name string, content io.Reader) error {
	if err := platform.ValidateName(name); err != nil {
		return err
	}
	if err := requireDir(w, dir); err != nil {
		return err
	}

	final := platform.JoinPath(dir, name)
	tmp := platform.JoinPath(dir, stagingName(name))
	if err := writeTo(ctx, w, tmp, content); err != nil {
		return err
	}

	if err := w.rename(tmp, final); err != nil {
		// Some servers refuse to rename over an existing file
		found, _ := exists(w, final)
		if !found {
			_ = w.remove(tmp)
			return fmt.Errorf("failed to move %s into place: %w", final, err)
		}
		if err := w.remove(final); err != nil {
			_ = w.remove(tmp)
			return fmt.Errorf("failed to replace %s: %w", final, err)
		}
		if err := w.rename(tmp, final); err != nil {
			_ = w.remove(tmp)
			return fmt.Errorf("failed to move %s into place: %w", final, err)
		}
	}
	return nil
}

// writeFolder uploads files under dir/folderName. A new folder is assembled
// under a hidden staging name and renamed once complete, so a failed upload
// leaves nothing behind. Files are written straight into an existing folder.
func writeFolder(ctx context.Context, w treeWriter, dir, folderName string, files []models.UploadEntry) error {
	if err := platform.ValidateName(folderName); err != nil {
		return err
	}
	if err := requireDir(w, dir); err != nil {
		return err
	}

	target := platform.JoinPath(dir, folderName)
	existed, err := exists(w, target)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", target, err)
	}

	root := target
	if !existed {
		root = platform.JoinPath(dir, stagingName(folderName))
	}
	if err := w.mkdirAll(root); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", root, err)
	}

	abort := func(err error) error {
		if !existed {
			_ = w.removeAll(root)
		}
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		rel, err := platform.CleanPath(f.RelativePath)
		if err != nil {
			return abort(err)
		}
		if rel == "" {
			return abort(fmt.Errorf("empty relative path: %w", models.ErrInvalidPath))
		}

		if parent := path.Dir(rel); parent != "." {
			if err := w.mkdirAll(platform.JoinPath(root, parent)); err != nil {
				return abort(fmt.Errorf("failed to create folder %s: %w", parent, err))
			}
		}

		if err := writeEntry(ctx, w, platform.JoinPath(root, rel), f); err != nil {
			return abort(err)
		}
	}

	if !existed {
		if err := w.rename(root, target); err != nil {
			return abort(fmt.Errorf("failed to move %s into place: %w", target, err))
		}
	}
	return nil
}

func writeEntry(ctx context.Context, w treeWriter, p string, f models.UploadEntry) error {
	if f.Open == nil {
		return fmt.Errorf("no content for %s: %w", f.RelativePath, models.ErrInvalidPath)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.RelativePath, err)
	}
	defer rc.Close()
	return writeTo(ctx, w, p, rc)
}
