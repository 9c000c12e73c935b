package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hirochachacha/go-smb2"

	"github.com/sdejongh/filenorris/pkg/models"
)

// fakeSMBServer serves every top-level directory of root as a share
type fakeSMBServer struct {
	root     string
	extra    []string
	password string
	dials    atomic.Int32
	open     atomic.Int32
}

func (f *fakeSMBServer) dial(ctx context.Context, addr string, auth smbAuth) (smbSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if auth.Password != f.password {
		return nil, errors.New("logon failure")
	}
	f.dials.Add(1)
	f.open.Add(1)
	return &fakeSMBSession{srv: f}, nil
}

type fakeSMBSession struct {
	srv *fakeSMBServer
}

func (s *fakeSMBSession) ListSharenames() ([]string, error) {
	entries, err := os.ReadDir(s.srv.root)
	if err != nil {
		return nil, err
	}
	names := append([]string{}, s.srv.extra...)
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *fakeSMBSession) Mount(share string) (smbShare, error) {
	dir := filepath.Join(s.srv.root, share)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, &os.PathError{Op: "mount", Path: share, Err: &smb2.ResponseError{Code: statusBadNetworkName}}
	}
	return &fakeSMBShare{dir: dir}, nil
}

func (s *fakeSMBSession) Logoff() error {
	s.srv.open.Add(-1)
	return nil
}

type fakeSMBShare struct {
	dir string
}

func (s *fakeSMBShare) full(name string) (string, error) {
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("forward slash in SMB path %q", name)
	}
	return filepath.Join(s.dir, filepath.FromSlash(strings.ReplaceAll(name, "\\", "/"))), nil
}

// smbStat exposes the directory bit only through the attributes, the way
// a server does
type smbStat struct {
	fs.FileInfo
	stat *smb2.FileStat
}

func (i smbStat) IsDir() bool      { return false }
func (i smbStat) Sys() interface{} { return i.stat }

func wrapInfo(info fs.FileInfo) fs.FileInfo {
	var attrs uint32 = 0x80
	if info.IsDir() {
		attrs = fileAttributeDirectory
	}
	return smbStat{FileInfo: info, stat: &smb2.FileStat{
		EndOfFile:      info.Size(),
		FileAttributes: attrs,
		FileName:       info.Name(),
		LastWriteTime:  info.ModTime(),
	}}
}

func (s *fakeSMBShare) ReadDir(dir string) ([]fs.FileInfo, error) {
	full, err := s.full(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	self, _ := os.Stat(full)
	infos := []fs.FileInfo{namedInfo{self, "."}, namedInfo{self, ".."}}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, wrapInfo(info))
	}
	return infos, nil
}

type namedInfo struct {
	fs.FileInfo
	name string
}

func (i namedInfo) Name() string { return i.name }

func (s *fakeSMBShare) Stat(name string) (fs.FileInfo, error) {
	full, err := s.full(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: &smb2.ResponseError{Code: statusObjectNameNotFound}}
	}
	return wrapInfo(info), nil
}

func (s *fakeSMBShare) Open(name string) (io.ReadSeekCloser, error) {
	full, err := s.full(name)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *fakeSMBShare) Create(name string) (io.WriteCloser, error) {
	full, err := s.full(name)
	if err != nil {
		return nil, err
	}
	return os.Create(full)
}

func (s *fakeSMBShare) MkdirAll(dir string, perm fs.FileMode) error {
	full, err := s.full(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, perm)
}

func (s *fakeSMBShare) Rename(oldpath, newpath string) error {
	from, err := s.full(oldpath)
	if err != nil {
		return err
	}
	to, err := s.full(newpath)
	if err != nil {
		return err
	}
	// SMB refuses to replace an existing name
	if _, err := os.Stat(to); err == nil {
		return errors.New("object name collision")
	}
	return os.Rename(from, to)
}

func (s *fakeSMBShare) Remove(name string) error {
	full, err := s.full(name)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

func (s *fakeSMBShare) RemoveAll(dir string) error {
	full, err := s.full(dir)
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}

func (s *fakeSMBShare) Umount() error { return nil }

func newFakeSMB(t *testing.T) (*SMB, *fakeSMBServer) {
	t.Helper()
	root := tempDir(t)
	makeTree(t, root, map[string][]byte{
		"media/photos/a.png": pngImage(t, 64, 64),
		"media/photos/b.txt": []byte("bee"),
		"media/readme.txt":   []byte("hello smb"),
		"backup/":            nil,
	})

	srv := &fakeSMBServer{root: root, extra: []string{"IPC$", "ADMIN$", "C$"}, password: "s3cret"}
	repo := NewSMB(models.SMBConfig{ID: "nas", Name: "NAS", Host: "nas.local", Username: "joe"},
		func(ctx context.Context) (string, error) { return "s3cret", nil }, Options{})
	repo.dial = srv.dial
	return repo, srv
}

func TestSMBListShares(t *testing.T) {
	repo, srv := newFakeSMB(t)

	items, err := repo.GetFiles(context.Background(), "")
	if err != nil {
		t.Fatalf("GetFiles() error = %v", err)
	}

	var names []string
	for _, it := range items {
		if !it.IsDir || it.Path != it.Name {
			t.Errorf("share item = %+v", it)
		}
		names = append(names, it.Name)
	}
	sort.Strings(names)
	if want := []string{"backup", "media"}; !reflect.DeepEqual(names, want) {
		t.Errorf("shares = %v, want %v", names, want)
	}
	if srv.open.Load() != 0 {
		t.Errorf("%d sessions left open", srv.open.Load())
	}
}

func TestSMBGetFiles(t *testing.T) {
	repo, srv := newFakeSMB(t)
	ctx := context.Background()

	t.Run("ShareRoot", func(t *testing.T) {
		items, err := repo.GetFiles(ctx, "media")
		if err != nil {
			t.Fatalf("GetFiles() error = %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("GetFiles() = %+v, want 2 items without dot entries", items)
		}
		byName := itemsByName(items)
		if !byName["photos"].IsDir || byName["photos"].Path != "media/photos" {
			t.Errorf("photos = %+v", byName["photos"])
		}
		if byName["readme.txt"].IsDir || byName["readme.txt"].Size != 9 {
			t.Errorf("readme.txt = %+v", byName["readme.txt"])
		}
	})

	t.Run("Nested", func(t *testing.T) {
		items, err := repo.GetFiles(ctx, "media/photos")
		if err != nil {
			t.Fatalf("GetFiles() error = %v", err)
		}
		byName := itemsByName(items)
		if byName["b.txt"].Path != "media/photos/b.txt" {
			t.Errorf("b.txt path = %q", byName["b.txt"].Path)
		}
	})

	t.Run("MissingShare", func(t *testing.T) {
		_, err := repo.GetFiles(ctx, "nope")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetFiles() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		_, err := repo.GetFiles(ctx, "media/nope")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetFiles() error = %v, want ErrNotFound", err)
		}
	})

	if srv.open.Load() != 0 {
		t.Errorf("%d sessions left open", srv.open.Load())
	}
}

func TestSMBCredentials(t *testing.T) {
	repo, _ := newFakeSMB(t)
	ctx := context.Background()

	repo.secret = func(ctx context.Context) (string, error) { return "", models.ErrCredentialMissing }
	if _, err := repo.GetFiles(ctx, ""); !errors.Is(err, models.ErrCredentialMissing) {
		t.Errorf("GetFiles() error = %v, want ErrCredentialMissing", err)
	}

	repo.secret = func(ctx context.Context) (string, error) { return "wrong", nil }
	if _, err := repo.GetFiles(ctx, ""); err == nil {
		t.Error("GetFiles() should fail with a wrong password")
	}
}

func TestSMBGetFileContent(t *testing.T) {
	repo, srv := newFakeSMB(t)
	ctx := context.Background()

	rc, err := repo.GetFileContent(ctx, "media/readme.txt")
	if err != nil {
		t.Fatalf("GetFileContent() error = %v", err)
	}
	if srv.open.Load() != 1 {
		t.Errorf("session should stay open while streaming, open = %d", srv.open.Load())
	}
	if got := readAll(t, rc); string(got) != "hello smb" {
		t.Errorf("content = %q", got)
	}
	if srv.open.Load() != 0 {
		t.Errorf("session should close with the stream, open = %d", srv.open.Load())
	}

	if _, err := repo.GetFileContent(ctx, "media/photos"); !errors.Is(err, models.ErrInvalidPath) {
		t.Errorf("GetFileContent(dir) error = %v, want ErrInvalidPath", err)
	}
	if _, err := repo.GetFileContent(ctx, "media"); !errors.Is(err, models.ErrInvalidPath) {
		t.Errorf("GetFileContent(share) error = %v, want ErrInvalidPath", err)
	}
	if srv.open.Load() != 0 {
		t.Errorf("%d sessions left open", srv.open.Load())
	}
}

func TestSMBGetThumbnail(t *testing.T) {
	repo, srv := newFakeSMB(t)
	ctx := context.Background()

	rc, err := repo.GetThumbnail(ctx, "media/photos/a.png", 16)
	if err != nil || rc == nil {
		t.Fatalf("GetThumbnail() = %v, %v", rc, err)
	}
	readAll(t, rc)

	rc, err = repo.GetThumbnail(ctx, "media/photos/b.txt", 16)
	if err != nil || rc == nil {
		t.Fatalf("GetThumbnail() = %v, %v", rc, err)
	}
	if got := readAll(t, rc); string(got) != "bee" {
		t.Errorf("fallback content = %q", got)
	}

	rc, err = repo.GetThumbnail(ctx, "media/none.png", 16)
	if err != nil || rc != nil {
		t.Errorf("GetThumbnail(missing) = %v, %v; want nil, nil", rc, err)
	}

	if srv.open.Load() != 0 {
		t.Errorf("%d sessions left open", srv.open.Load())
	}
}

func TestSMBUpload(t *testing.T) {
	repo, srv := newFakeSMB(t)
	ctx := context.Background()

	t.Run("File", func(t *testing.T) {
		if err := repo.UploadFile(ctx, "media/photos", "c.txt", strings.NewReader("sea")); err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		got, _ := os.ReadFile(filepath.Join(srv.root, "media", "photos", "c.txt"))
		if string(got) != "sea" {
			t.Errorf("uploaded content = %q", got)
		}
	})

	t.Run("ReplaceExisting", func(t *testing.T) {
		if err := repo.UploadFile(ctx, "media", "readme.txt", strings.NewReader("v2")); err != nil {
			t.Fatalf("UploadFile() error = %v", err)
		}
		got, _ := os.ReadFile(filepath.Join(srv.root, "media", "readme.txt"))
		if string(got) != "v2" {
			t.Errorf("replaced content = %q", got)
		}
	})

	t.Run("ServerRoot", func(t *testing.T) {
		err := repo.UploadFile(ctx, "", "x.txt", strings.NewReader("x"))
		if !errors.Is(err, models.ErrUnsupported) {
			t.Errorf("UploadFile() error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("Folder", func(t *testing.T) {
		files := []models.UploadEntry{entry("one.txt", "1"), entry("sub/two.txt", "2")}
		if err := repo.UploadFolder(ctx, "backup", "set", files); err != nil {
			t.Fatalf("UploadFolder() error = %v", err)
		}
		want := []string{"set", "set/one.txt", "set/sub", "set/sub/two.txt"}
		if got := listTree(t, filepath.Join(srv.root, "backup")); !reflect.DeepEqual(got, want) {
			t.Errorf("backup = %v, want %v", got, want)
		}
	})

	if srv.open.Load() != 0 {
		t.Errorf("%d sessions left open", srv.open.Load())
	}
}
