package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
)

const (
	fileAttributeDirectory = 0x10

	statusNoSuchFile         = 0xC000000F
	statusObjectNameNotFound = 0xC0000034
	statusObjectPathNotFound = 0xC000003A
	statusBadNetworkName     = 0xC00000CC
)

// smbSession is the part of an authenticated SMB session the repository uses
type smbSession interface {
	ListSharenames() ([]string, error)
	Mount(share string) (smbShare, error)
	Logoff() error
}

// smbShare is a mounted share; names use backslash separators
type smbShare interface {
	ReadDir(dir string) ([]fs.FileInfo, error)
	Stat(name string) (fs.FileInfo, error)
	Open(name string) (io.ReadSeekCloser, error)
	Create(name string) (io.WriteCloser, error)
	MkdirAll(dir string, perm fs.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
	RemoveAll(dir string) error
	Umount() error
}

type smbAuth struct {
	Domain   string
	User     string
	Password string
}

type smbDialFunc func(ctx context.Context, addr string, auth smbAuth) (smbSession, error)

// SMB is a repository over an SMB2/3 server. Paths start with the share
// name; the root lists the server's shares.
type SMB struct {
	cfg    models.SMBConfig
	secret SecretFunc
	opts   Options
	dial   smbDialFunc
}

// NewSMB creates an SMB repository. No connection is made until the first
// call; every call dials its own session.
func NewSMB(cfg models.SMBConfig, secret SecretFunc, opts Options) *SMB {
	opts = opts.withDefaults()
	return &SMB{
		cfg:    cfg,
		secret: secret,
		opts:   opts,
		dial:   dialSMB2(opts.DialTimeout),
	}
}

func (s *SMB) connect(ctx context.Context) (smbSession, error) {
	password, err := s.secret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	sess, err := s.dial(ctx, s.cfg.Address(), smbAuth{
		Domain:   s.cfg.Domain,
		User:     s.cfg.Username,
		Password: password,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", s.cfg.Address(), err)
	}
	return sess, nil
}

// mount dials a session and mounts share; release unmounts and logs off
func (s *SMB) mount(ctx context.Context, share string) (smbShare, func(), error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	sh, err := sess.Mount(share)
	if err != nil {
		sess.Logoff()
		return nil, nil, notFound(share, smbErr(err))
	}

	release := func() {
		if err := sh.Umount(); err != nil {
			s.opts.Logger.Debug(ctx, "SMB unmount failed", logging.Fields{"share": share, "error": err.Error()})
		}
		sess.Logoff()
	}
	return sh, release, nil
}

// GetFiles lists shares at the root, or the children of a directory
func (s *SMB) GetFiles(ctx context.Context, path string) ([]models.FileItem, error) {
	clean, err := platform.CleanPath(path)
	if err != nil {
		return nil, err
	}

	if clean == "" {
		return s.listShares(ctx)
	}

	share, rest := platform.SplitShare(clean)
	sh, release, err := s.mount(ctx, share)
	if err != nil {
		return nil, err
	}
	defer release()

	infos, err := sh.ReadDir(platform.ToSMBPath(rest))
	if err != nil {
		err = smbErr(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(path, err)
		}
		if info, serr := sh.Stat(platform.ToSMBPath(rest)); serr == nil && !smbIsDir(info) {
			return nil, fmt.Errorf("%s: %w", path, models.ErrNotDirectory)
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	items := make([]models.FileItem, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}
		isDir := smbIsDir(info)
		items = append(items, models.NewFileItem(
			name,
			platform.JoinPath(clean, platform.FromSMBPath(name)),
			isDir,
			info.Size(),
			info.ModTime(),
		))
	}
	return items, nil
}

func (s *SMB) listShares(ctx context.Context) ([]models.FileItem, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Logoff()

	names, err := sess.ListSharenames()
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}

	items := make([]models.FileItem, 0, len(names))
	for _, name := range names {
		// Administrative, IPC and printer shares end in '$'
		if strings.HasSuffix(name, "$") {
			continue
		}
		items = append(items, models.NewFileItem(name, name, true, 0, time.Time{}))
	}
	return items, nil
}

func (s *SMB) open(ctx context.Context, path string) (io.ReadSeekCloser, error) {
	clean, err := platform.CleanPath(path)
	if err != nil {
		return nil, err
	}
	share, rest := platform.SplitShare(clean)
	if rest == "" {
		return nil, fmt.Errorf("%s is not a file: %w", path, models.ErrInvalidPath)
	}

	sh, release, err := s.mount(ctx, share)
	if err != nil {
		return nil, err
	}

	name := platform.ToSMBPath(rest)
	info, err := sh.Stat(name)
	if err != nil {
		release()
		return nil, notFound(path, smbErr(err))
	}
	if smbIsDir(info) {
		release()
		return nil, fmt.Errorf("%s is a directory: %w", path, models.ErrInvalidPath)
	}

	f, err := sh.Open(name)
	if err != nil {
		release()
		return nil, notFound(path, smbErr(err))
	}

	// The session stays up until the caller closes the stream
	return &releaseReader{ReadSeekCloser: f, release: release}, nil
}

// GetFileContent opens a file for reading
func (s *SMB) GetFileContent(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.open(ctx, path)
}

// GetThumbnail downloads the file and scales it when it is an image
func (s *SMB) GetThumbnail(ctx context.Context, path string, size int) (io.ReadCloser, error) {
	f, err := s.open(ctx, path)
	if err != nil {
		if isCanceled(err) {
			return nil, err
		}
		s.opts.Logger.Debug(ctx, "No thumbnail", logging.Fields{"path": path, "reason": err.Error()})
		return nil, nil
	}
	return thumbnailOrContent(ctx, f, size, s.opts.ThumbnailQuality, s.opts.Logger, path)
}

func (s *SMB) uploadTarget(ctx context.Context, destination string) (smbShare, func(), string, error) {
	clean, err := platform.CleanPath(destination)
	if err != nil {
		return nil, nil, "", err
	}
	if clean == "" {
		return nil, nil, "", fmt.Errorf("cannot upload outside a share: %w", models.ErrUnsupported)
	}

	share, rest := platform.SplitShare(clean)
	sh, release, err := s.mount(ctx, share)
	if err != nil {
		return nil, nil, "", err
	}
	return sh, release, rest, nil
}

// UploadFile writes content as destination/fileName
func (s *SMB) UploadFile(ctx context.Context, destination, fileName string, content io.Reader) error {
	sh, release, dir, err := s.uploadTarget(ctx, destination)
	if err != nil {
		return err
	}
	defer release()
	return writeFile(ctx, smbTree{sh}, dir, fileName, content)
}

// UploadFolder creates destination/folderName holding every entry
func (s *SMB) UploadFolder(ctx context.Context, destination, folderName string, files []models.UploadEntry) error {
	sh, release, dir, err := s.uploadTarget(ctx, destination)
	if err != nil {
		return err
	}
	defer release()
	return writeFolder(ctx, smbTree{sh}, dir, folderName, files)
}

// Close is a no-op; sessions never outlive a call
func (s *SMB) Close() error {
	return nil
}

func smbIsDir(info fs.FileInfo) bool {
	if st, ok := info.Sys().(*smb2.FileStat); ok {
		return st.FileAttributes&fileAttributeDirectory != 0
	}
	return info.IsDir()
}

// smbErr maps "no such object" statuses to fs.ErrNotExist
func smbErr(err error) error {
	if err == nil {
		return nil
	}
	var rerr *smb2.ResponseError
	if errors.As(err, &rerr) {
		switch rerr.Code {
		case statusNoSuchFile, statusObjectNameNotFound, statusObjectPathNotFound, statusBadNetworkName:
			return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
		}
	}
	return err
}

// smbTree adapts a mounted share to the upload helpers
type smbTree struct {
	sh smbShare
}

func (t smbTree) stat(p string) (fs.FileInfo, error) {
	info, err := t.sh.Stat(platform.ToSMBPath(p))
	if err != nil {
		return nil, smbErr(err)
	}
	return smbInfo{info}, nil
}

func (t smbTree) mkdirAll(p string) error {
	return smbErr(t.sh.MkdirAll(platform.ToSMBPath(p), 0755))
}

func (t smbTree) create(p string) (io.WriteCloser, error) {
	w, err := t.sh.Create(platform.ToSMBPath(p))
	return w, smbErr(err)
}

func (t smbTree) rename(oldpath, newpath string) error {
	return smbErr(t.sh.Rename(platform.ToSMBPath(oldpath), platform.ToSMBPath(newpath)))
}

func (t smbTree) remove(p string) error {
	return smbErr(t.sh.Remove(platform.ToSMBPath(p)))
}

func (t smbTree) removeAll(p string) error {
	return smbErr(t.sh.RemoveAll(platform.ToSMBPath(p)))
}

// smbInfo reports IsDir from the attribute bits
type smbInfo struct {
	fs.FileInfo
}

func (i smbInfo) IsDir() bool {
	return smbIsDir(i.FileInfo)
}

// go-smb2 adapters

type smb2Session struct {
	ctx  context.Context
	conn net.Conn
	s    *smb2.Session
}

func dialSMB2(timeout time.Duration) smbDialFunc {
	return func(ctx context.Context, addr string, auth smbAuth) (smbSession, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}

		dialer := &smb2.Dialer{
			Initiator: &smb2.NTLMInitiator{
				User:     auth.User,
				Password: auth.Password,
				Domain:   auth.Domain,
			},
		}
		s, err := dialer.DialContext(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &smb2Session{ctx: ctx, conn: conn, s: s}, nil
	}
}

func (s *smb2Session) ListSharenames() ([]string, error) {
	return s.s.ListSharenames()
}

func (s *smb2Session) Mount(share string) (smbShare, error) {
	sh, err := s.s.Mount(share)
	if err != nil {
		return nil, err
	}
	return &smb2Share{sh: sh.WithContext(s.ctx)}, nil
}

func (s *smb2Session) Logoff() error {
	err := s.s.Logoff()
	s.conn.Close()
	return err
}

type smb2Share struct {
	sh *smb2.Share
}

func (s *smb2Share) ReadDir(dir string) ([]fs.FileInfo, error) {
	return s.sh.ReadDir(dir)
}

func (s *smb2Share) Stat(name string) (fs.FileInfo, error) {
	return s.sh.Stat(name)
}

func (s *smb2Share) Open(name string) (io.ReadSeekCloser, error) {
	f, err := s.sh.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *smb2Share) Create(name string) (io.WriteCloser, error) {
	f, err := s.sh.Create(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *smb2Share) MkdirAll(dir string, perm fs.FileMode) error {
	return s.sh.MkdirAll(dir, perm)
}

func (s *smb2Share) Rename(oldpath, newpath string) error {
	return s.sh.Rename(oldpath, newpath)
}

func (s *smb2Share) Remove(name string) error {
	return s.sh.Remove(name)
}

func (s *smb2Share) RemoveAll(dir string) error {
	return s.sh.RemoveAll(dir)
}

func (s *smb2Share) Umount() error {
	return s.sh.Umount()
}
