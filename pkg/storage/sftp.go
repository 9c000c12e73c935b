package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
)

// ErrClosed is returned by a repository used after Close
var ErrClosed = errors.New("repository closed")

// sftpSession is one SSH connection with its SFTP channel. Done is closed
// once the underlying connection is gone.
type sftpSession interface {
	ReadDir(p string) ([]fs.FileInfo, error)
	Stat(p string) (fs.FileInfo, error)
	Open(p string) (io.ReadSeekCloser, error)
	Create(p string) (io.WriteCloser, error)
	MkdirAll(p string) error
	Rename(oldpath, newpath string) error
	Remove(p string) error
	RemoveAll(p string) error
	Done() <-chan struct{}
	Close() error
}

type sftpDialFunc func(ctx context.Context, addr, user, password string) (sftpSession, error)

// SFTPOptions configure the SSH transport
type SFTPOptions struct {
	// KnownHostsPath enables host key verification when set
	KnownHostsPath string

	// DialTimeout overrides Options.DialTimeout for SSH connections
	DialTimeout time.Duration
}

// SFTP is a repository over an SFTP server. Paths are relative to the
// configured start directory.
type SFTP struct {
	cfg    models.SFTPConfig
	secret SecretFunc
	opts   Options
	dial   sftpDialFunc

	// mu serializes every operation through the single session
	mu     sync.Mutex
	sess   sftpSession
	closed bool
}

// NewSFTP creates an SFTP repository. The session is dialed on first use.
func NewSFTP(cfg models.SFTPConfig, secret SecretFunc, sftpOpts SFTPOptions, opts Options) *SFTP {
	if sftpOpts.DialTimeout > 0 {
		opts.DialTimeout = sftpOpts.DialTimeout
	}
	opts = opts.withDefaults()
	if sftpOpts.KnownHostsPath == "" {
		opts.Logger.Warn(context.Background(), "SFTP host keys are not verified", logging.Fields{
			"storage_id": cfg.ID,
			"host":       cfg.Host,
		})
	}
	return &SFTP{
		cfg:    cfg,
		secret: secret,
		opts:   opts,
		dial:   dialSFTP(opts.DialTimeout, sftpOpts.KnownHostsPath),
	}
}

func (s *SFTP) remote(p string) string {
	start := s.cfg.StartDir
	if start == "" {
		start = "."
	}
	if p == "" {
		return start
	}
	return path.Join(start, p)
}

// session returns the live session, redialing when the previous one died.
// Callers hold mu.
func (s *SFTP) session(ctx context.Context) (sftpSession, error) {
	if s.sess != nil {
		select {
		case <-s.sess.Done():
			s.opts.Logger.Info(ctx, "SFTP connection lost, reconnecting", logging.Fields{"host": s.cfg.Host})
			s.drop()
		default:
			return s.sess, nil
		}
	}

	password, err := s.secret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}

	sess, err := s.dial(ctx, s.cfg.Address(), s.cfg.Username, password)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", s.cfg.Address(), err)
	}

	s.opts.Logger.Debug(ctx, "SFTP session established", logging.Fields{"host": s.cfg.Host})
	s.sess = sess
	return sess, nil
}

func (s *SFTP) drop() {
	if s.sess != nil {
		s.sess.Close()
		s.sess = nil
	}
}

func connectionLost(sess sftpSession, err error) bool {
	select {
	case <-sess.Done():
		return true
	default:
	}
	return errors.Is(err, sftp.ErrSSHFxConnectionLost) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

// do runs op on the session, redialing and retrying once if the
// connection turns out to be gone
func (s *SFTP) do(ctx context.Context, op func(sftpSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sess, err := s.session(ctx)
		if err != nil {
			return err
		}

		err = op(sess)
		if err == nil || attempt > 0 || !connectionLost(sess, err) {
			return err
		}

		s.opts.Logger.Info(ctx, "SFTP connection lost, retrying", logging.Fields{
			"host":  s.cfg.Host,
			"error": err.Error(),
		})
		s.drop()
	}
}

// GetFiles lists the children of path; "" is the start directory
func (s *SFTP) GetFiles(ctx context.Context, p string) ([]models.FileItem, error) {
	clean, err := platform.CleanPath(p)
	if err != nil {
		return nil, err
	}

	var infos []fs.FileInfo
	err = s.do(ctx, func(sess sftpSession) error {
		info, err := sess.Stat(s.remote(clean))
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", p, models.ErrNotDirectory)
		}
		infos, err = sess.ReadDir(s.remote(clean))
		return err
	})
	if err != nil {
		return nil, notFound(p, err)
	}

	items := make([]models.FileItem, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}
		items = append(items, models.NewFileItem(
			name,
			platform.JoinPath(clean, name),
			info.IsDir(),
			info.Size(),
			info.ModTime(),
		))
	}
	return items, nil
}

func (s *SFTP) open(ctx context.Context, p string) (io.ReadSeekCloser, error) {
	clean, err := platform.CleanPath(p)
	if err != nil {
		return nil, err
	}
	if clean == "" {
		return nil, fmt.Errorf("%s is a directory: %w", p, models.ErrInvalidPath)
	}

	var f io.ReadSeekCloser
	err = s.do(ctx, func(sess sftpSession) error {
		info, err := sess.Stat(s.remote(clean))
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory: %w", p, models.ErrInvalidPath)
		}
		f, err = sess.Open(s.remote(clean))
		return err
	})
	if err != nil {
		return nil, notFound(p, err)
	}
	return f, nil
}

// GetFileContent opens a file for reading
func (s *SFTP) GetFileContent(ctx context.Context, p string) (io.ReadCloser, error) {
	return s.open(ctx, p)
}

// GetThumbnail downloads the file and scales it when it is an image
func (s *SFTP) GetThumbnail(ctx context.Context, p string, size int) (io.ReadCloser, error) {
	f, err := s.open(ctx, p)
	if err != nil {
		if isCanceled(err) {
			return nil, err
		}
		s.opts.Logger.Debug(ctx, "No thumbnail", logging.Fields{"path": p, "reason": err.Error()})
		return nil, nil
	}
	return thumbnailOrContent(ctx, f, size, s.opts.ThumbnailQuality, s.opts.Logger, p)
}

// UploadFile writes content as destination/fileName
func (s *SFTP) UploadFile(ctx context.Context, destination, fileName string, content io.Reader) error {
	dir, err := platform.CleanPath(destination)
	if err != nil {
		return err
	}

	// The body is consumed by the first attempt, so no retry here
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sess, err := s.session(ctx)
	if err != nil {
		return err
	}
	return writeFile(ctx, sftpTree{s, sess}, dir, fileName, content)
}

// UploadFolder creates destination/folderName holding every entry
func (s *SFTP) UploadFolder(ctx context.Context, destination, folderName string, files []models.UploadEntry) error {
	dir, err := platform.CleanPath(destination)
	if err != nil {
		return err
	}
	return s.do(ctx, func(sess sftpSession) error {
		return writeFolder(ctx, sftpTree{s, sess}, dir, folderName, files)
	})
}

// Close tears down the session
func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.sess == nil {
		return nil
	}
	err := s.sess.Close()
	s.sess = nil
	return err
}

// sftpTree adapts a session to the upload helpers
type sftpTree struct {
	s    *SFTP
	sess sftpSession
}

func (t sftpTree) stat(p string) (fs.FileInfo, error) {
	return t.sess.Stat(t.s.remote(p))
}

func (t sftpTree) mkdirAll(p string) error {
	return t.sess.MkdirAll(t.s.remote(p))
}

func (t sftpTree) create(p string) (io.WriteCloser, error) {
	return t.sess.Create(t.s.remote(p))
}

func (t sftpTree) rename(oldpath, newpath string) error {
	return t.sess.Rename(t.s.remote(oldpath), t.s.remote(newpath))
}

func (t sftpTree) remove(p string) error {
	return t.sess.Remove(t.s.remote(p))
}

func (t sftpTree) removeAll(p string) error {
	return t.sess.RemoveAll(t.s.remote(p))
}

// pkg/sftp adapter

type sftpClientSession struct {
	ssh  *ssh.Client
	c    *sftp.Client
	done chan struct{}
}

func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(platform.ExpandHome(knownHostsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	return cb, nil
}

func dialSFTP(timeout time.Duration, knownHostsPath string) sftpDialFunc {
	return func(ctx context.Context, addr, user, password string) (sftpSession, error) {
		hostKey, err := hostKeyCallback(knownHostsPath)
		if err != nil {
			return nil, err
		}

		config := &ssh.ClientConfig{
			User: user,
			Auth: []ssh.AuthMethod{
				ssh.Password(password),
				ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
					answers := make([]string, len(questions))
					for i := range answers {
						answers[i] = password
					}
					return answers, nil
				}),
			},
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		}

		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}

		// The SSH handshake is not context-aware
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		} else {
			conn.SetDeadline(time.Now().Add(timeout))
		}

		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn.SetDeadline(time.Time{})

		client := ssh.NewClient(c, chans, reqs)
		sc, err := sftp.NewClient(client)
		if err != nil {
			client.Close()
			return nil, err
		}

		s := &sftpClientSession{ssh: client, c: sc, done: make(chan struct{})}
		go func() {
			client.Wait()
			close(s.done)
		}()
		return s, nil
	}
}

func (s *sftpClientSession) ReadDir(p string) ([]fs.FileInfo, error) {
	return s.c.ReadDir(p)
}

func (s *sftpClientSession) Stat(p string) (fs.FileInfo, error) {
	return s.c.Stat(p)
}

func (s *sftpClientSession) Open(p string) (io.ReadSeekCloser, error) {
	f, err := s.c.Open(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *sftpClientSession) Create(p string) (io.WriteCloser, error) {
	f, err := s.c.Create(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *sftpClientSession) MkdirAll(p string) error {
	return s.c.MkdirAll(p)
}

func (s *sftpClientSession) Rename(oldpath, newpath string) error {
	if err := s.c.PosixRename(oldpath, newpath); err == nil {
		return nil
	}
	return s.c.Rename(oldpath, newpath)
}

func (s *sftpClientSession) Remove(p string) error {
	return s.c.Remove(p)
}

func (s *sftpClientSession) RemoveAll(p string) error {
	info, err := s.c.Lstat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return s.c.Remove(p)
	}

	entries, err := s.c.ReadDir(p)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.RemoveAll(path.Join(p, e.Name())); err != nil {
			return err
		}
	}
	return s.c.RemoveDirectory(p)
}

func (s *sftpClientSession) Done() <-chan struct{} {
	return s.done
}

func (s *sftpClientSession) Close() error {
	err := s.c.Close()
	s.ssh.Close()
	return err
}
