package storage

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sdejongh/filenorris/pkg/models"
)

// TestNewLocal tests the Local repository constructor
func TestNewLocal(t *testing.T) {
	t.Run("ValidDirectory", func(t *testing.T) {
		local, err := NewLocal(tempDir(t), Options{})
		if err != nil {
			t.Fatalf("NewLocal() error = %v", err)
		}
		if local == nil {
			t.Fatal("NewLocal() returned nil")
		}
		defer local.Close()
	})

	t.Run("NonExistentPath", func(t *testing.T) {
		_, err := NewLocal("/nonexistent/path/that/does/not/exist", Options{})
		if err == nil {
			t.Error("NewLocal() should fail for non-existent path")
		}
	})

	t.Run("FileNotDirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp("", "filenorris-file-*")
		if err != nil {
			t.Fatalf("failed to create temp file: %v", err)
		}
		tempFile.Close()
		defer os.Remove(tempFile.Name())

		_, err = NewLocal(tempFile.Name(), Options{})
		if err == nil {
			t.Error("NewLocal() should fail for file path (not directory)")
		}
	})
}

// TestLocalGetFiles tests one-level listings
func TestLocalGetFiles(t *testing.T) {
	root := tempDir(t)
	makeTree(t, root, map[string][]byte{
		"file1.txt":        []byte("content1"),
		"file2.txt":        []byte("longer content"),
		"subdir/file3.txt": []byte("content3"),
		"empty/":           nil,
	})

	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(root, "file1.txt"), modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}

	local, err := NewLocal(root, Options{})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	defer local.Close()

	ctx := context.Background()

	t.Run("Root", func(t *testing.T) {
		items, err := local.GetFiles(ctx, "")
		if err != nil {
			t.Fatalf("GetFiles() error = %v", err)
		}
		if len(items) != 4 {
			t.Fatalf("GetFiles() returned %d items, want 4 (no recursion)", len(items))
		}

		byName := itemsByName(items)
		f1 := byName["file1.txt"]
		if f1.Path != "file1.txt" || f1.IsDir || f1.Size != 8 {
			t.Errorf("file1.txt = %+v", f1)
		}
		if f1.LastModified != modTime.UnixMilli() {
			t.Errorf("file1.txt LastModified = %d, want %d", f1.LastModified, modTime.UnixMilli())
		}

		sub := byName["subdir"]
		if !sub.IsDir || sub.Size != 0 || sub.Path != "subdir" {
			t.Errorf("subdir = %+v", sub)
		}
	})

	t.Run("Subdirectory", func(t *testing.T) {
		for _, p := range []string{"subdir", "/subdir/", "subdir/."} {
			items, err := local.GetFiles(ctx, p)
			if err != nil {
				t.Fatalf("GetFiles(%q) error = %v", p, err)
			}
			if len(items) != 1 || items[0].Path != "subdir/file3.txt" {
				t.Errorf("GetFiles(%q) = %+v", p, items)
			}
		}
	})

	t.Run("EmptyDirectory", func(t *testing.T) {
		items, err := local.GetFiles(ctx, "empty")
		if err != nil {
			t.Fatalf("GetFiles() error = %v", err)
		}
		if len(items) != 0 {
			t.Errorf("GetFiles() = %+v, want empty", items)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := local.GetFiles(ctx, "missing")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetFiles() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("NotDirectory", func(t *testing.T) {
		_, err := local.GetFiles(ctx, "file1.txt")
		if !errors.Is(err, models.ErrNotDirectory) {
			t.Errorf("GetFiles() error = %v, want ErrNotDirectory", err)
		}
	})

	t.Run("EscapesRoot", func(t *testing.T) {
		_, err := local.GetFiles(ctx, "../")
		if !errors.Is(err, models.ErrInvalidPath) {
			t.Errorf("GetFiles() error = %v, want ErrInvalidPath", err)
		}
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := local.GetFiles(cancelled, "")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("GetFiles() error = %v, want context.Canceled", err)
		}
	})
}

// TestLocalGetFileContent tests reading files
func TestLocalGetFileContent(t *testing.T) {
	root := tempDir(t)
	makeTree(t, root, map[string][]byte{
		"docs/readme.txt": []byte("hello"),
	})

	local, _ := NewLocal(root, Options{})
	ctx := context.Background()

	t.Run("ReadFile", func(t *testing.T) {
		rc, err := local.GetFileContent(ctx, "docs/readme.txt")
		if err != nil {
			t.Fatalf("GetFileContent() error = %v", err)
		}
		if got := readAll(t, rc); string(got) != "hello" {
			t.Errorf("content = %q, want hello", got)
		}
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := local.GetFileContent(ctx, "docs")
		if err == nil {
			t.Error("GetFileContent() should fail for a directory")
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := local.GetFileContent(ctx, "docs/none.txt")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetFileContent() error = %v, want ErrNotFound", err)
		}
	})
}

// TestLocalGetThumbnail tests preview generation and its fallback
func TestLocalGetThumbnail(t *testing.T) {
	root := tempDir(t)
	notes := []byte("not an image at all")
	makeTree(t, root, map[string][]byte{
		"photo.png": pngImage(t, 300, 150),
		"notes.txt": notes,
		"dir/":      nil,
	})

	local, _ := NewLocal(root, Options{})
	ctx := context.Background()

	t.Run("Image", func(t *testing.T) {
		rc, err := local.GetThumbnail(ctx, "photo.png", 64)
		if err != nil || rc == nil {
			t.Fatalf("GetThumbnail() = %v, %v", rc, err)
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(readAll(t, rc)))
		if err != nil {
			t.Fatalf("thumbnail is not JPEG: %v", err)
		}
		if cfg.Width > 64 || cfg.Height > 64 {
			t.Errorf("thumbnail = %dx%d, larger than 64", cfg.Width, cfg.Height)
		}
	})

	t.Run("FallbackToContent", func(t *testing.T) {
		rc, err := local.GetThumbnail(ctx, "notes.txt", 64)
		if err != nil || rc == nil {
			t.Fatalf("GetThumbnail() = %v, %v", rc, err)
		}
		if got := readAll(t, rc); !bytes.Equal(got, notes) {
			t.Errorf("fallback content = %q, want %q", got, notes)
		}
	})

	t.Run("NothingToShow", func(t *testing.T) {
		for _, p := range []string{"dir", "missing.png"} {
			rc, err := local.GetThumbnail(ctx, p, 64)
			if err != nil || rc != nil {
				t.Errorf("GetThumbnail(%q) = %v, %v; want nil, nil", p, rc, err)
			}
		}
	})
}

// TestLocalUploadFile tests single file uploads
func TestLocalUploadFile(t *testing.T) {
	root := tempDir(t)
	makeTree(t, root, map[string][]byte{
		"inbox/old.txt": []byte("old"),
		"plain.txt":     []byte("x"),
	})

	local, _ := NewLocal(root, Options{})
	ctx := context.Background()

	t.Run("NewFile", func(t *testing.T) {
		if err := local.UploadFile(ctx, "inbox", "new.txt", strings.NewReader("fresh")); err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		got, _ := os.ReadFile(filepath.Join(root, "inbox", "new.txt"))
		if string(got) != "fresh" {
			t.Errorf("uploaded content = %q", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := local.UploadFile(ctx, "inbox", "old.txt", strings.NewReader("replaced")); err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		got, _ := os.ReadFile(filepath.Join(root, "inbox", "old.txt"))
		if string(got) != "replaced" {
			t.Errorf("uploaded content = %q", got)
		}
	})

	t.Run("NoStagingLeftovers", func(t *testing.T) {
		want := []string{"new.txt", "old.txt"}
		if got := listTree(t, filepath.Join(root, "inbox")); !reflect.DeepEqual(got, want) {
			t.Errorf("inbox = %v, want %v", got, want)
		}
	})

	t.Run("MissingDestination", func(t *testing.T) {
		err := local.UploadFile(ctx, "nowhere", "a.txt", strings.NewReader("a"))
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("UploadFile() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DestinationIsFile", func(t *testing.T) {
		err := local.UploadFile(ctx, "plain.txt", "a.txt", strings.NewReader("a"))
		if !errors.Is(err, models.ErrNotDirectory) {
			t.Errorf("UploadFile() error = %v, want ErrNotDirectory", err)
		}
	})

	t.Run("InvalidName", func(t *testing.T) {
		for _, name := range []string{"", "..", "a/b"} {
			err := local.UploadFile(ctx, "inbox", name, strings.NewReader("a"))
			if !errors.Is(err, models.ErrInvalidPath) {
				t.Errorf("UploadFile(%q) error = %v, want ErrInvalidPath", name, err)
			}
		}
	})

	t.Run("FailedReadLeavesNothing", func(t *testing.T) {
		failing := io.MultiReader(strings.NewReader("partial"), iotestErrReader{})
		if err := local.UploadFile(ctx, "inbox", "broken.txt", failing); err == nil {
			t.Fatal("UploadFile() should fail when the source fails")
		}
		want := []string{"new.txt", "old.txt"}
		if got := listTree(t, filepath.Join(root, "inbox")); !reflect.DeepEqual(got, want) {
			t.Errorf("inbox = %v, want %v", got, want)
		}
	})
}

type iotestErrReader struct{}

func (iotestErrReader) Read([]byte) (int, error) {
	return 0, errors.New("source went away")
}

// TestLocalUploadFolder tests folder uploads
func TestLocalUploadFolder(t *testing.T) {
	root := tempDir(t)
	makeTree(t, root, map[string][]byte{
		"existing/keep.txt": []byte("keep"),
	})

	local, _ := NewLocal(root, Options{})
	ctx := context.Background()

	t.Run("NewFolder", func(t *testing.T) {
		files := []models.UploadEntry{
			entry("a.txt", "A"),
			entry("nested/deeper/b.txt", "B"),
		}
		if err := local.UploadFolder(ctx, "", "album", files); err != nil {
			t.Fatalf("UploadFolder() error = %v", err)
		}

		want := []string{"a.txt", "nested", "nested/deeper", "nested/deeper/b.txt"}
		if got := listTree(t, filepath.Join(root, "album")); !reflect.DeepEqual(got, want) {
			t.Errorf("album = %v, want %v", got, want)
		}
		got, _ := os.ReadFile(filepath.Join(root, "album", "nested", "deeper", "b.txt"))
		if string(got) != "B" {
			t.Errorf("b.txt = %q", got)
		}
	})

	t.Run("IntoExistingFolder", func(t *testing.T) {
		if err := local.UploadFolder(ctx, "", "existing", []models.UploadEntry{entry("added.txt", "new")}); err != nil {
			t.Fatalf("UploadFolder() error = %v", err)
		}
		want := []string{"added.txt", "keep.txt"}
		if got := listTree(t, filepath.Join(root, "existing")); !reflect.DeepEqual(got, want) {
			t.Errorf("existing = %v, want %v", got, want)
		}
	})

	t.Run("AllOrNothing", func(t *testing.T) {
		before := listTree(t, root)
		files := []models.UploadEntry{
			entry("ok.txt", "fine"),
			{
				RelativePath: "bad.txt",
				Open: func() (io.ReadCloser, error) {
					return nil, errors.New("permission denied")
				},
			},
		}
		if err := local.UploadFolder(ctx, "", "broken", files); err == nil {
			t.Fatal("UploadFolder() should fail")
		}
		if got := listTree(t, root); !reflect.DeepEqual(got, before) {
			t.Errorf("tree changed after failed upload: %v, want %v", got, before)
		}
	})

	t.Run("EscapingEntry", func(t *testing.T) {
		err := local.UploadFolder(ctx, "", "evil", []models.UploadEntry{entry("../outside.txt", "x")})
		if !errors.Is(err, models.ErrInvalidPath) {
			t.Errorf("UploadFolder() error = %v, want ErrInvalidPath", err)
		}
		if _, err := os.Stat(filepath.Join(root, "outside.txt")); !os.IsNotExist(err) {
			t.Error("entry escaped the uploaded folder")
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := local.UploadFolder(cancelled, "", "late", []models.UploadEntry{entry("a.txt", "A")})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("UploadFolder() error = %v, want context.Canceled", err)
		}
		if _, err := os.Stat(filepath.Join(root, "late")); !os.IsNotExist(err) {
			t.Error("cancelled upload left a folder behind")
		}
	})
}
