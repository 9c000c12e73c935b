package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/storage"
)

type mapConfigs map[string]models.StorageConfiguration

func (m mapConfigs) Get(ctx context.Context, id string) (models.StorageConfiguration, error) {
	cfg, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrStorageNotFound, id)
	}
	return cfg, nil
}

type mapCreds map[string]string

func (m mapCreds) Get(ctx context.Context, id string) (string, error) {
	s, ok := m[id]
	if !ok {
		return "", models.ErrCredentialMissing
	}
	return s, nil
}

type stubRepo struct {
	storage.FileRepository
	id     string
	closed atomic.Bool
}

func (s *stubRepo) Close() error {
	s.closed.Store(true)
	return nil
}

// recordingLogger keeps warning and error messages
type recordingLogger struct {
	logging.NullLogger
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Warn(ctx context.Context, msg string, fields logging.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordingLogger) Error(ctx context.Context, msg string, err error, fields logging.Fields) {
	l.Warn(ctx, msg, fields)
}

func newTestRegistry(t *testing.T) (*Registry, *atomic.Int32, *recordingLogger) {
	t.Helper()
	configs := mapConfigs{
		"nas":   models.SMBConfig{ID: "nas", Name: "NAS", Host: "nas", Username: "u"},
		"box":   models.SFTPConfig{ID: "box", Name: "Box", Host: "box", Username: "u"},
		"local": models.LocalConfig{ID: "local", Name: "Local", RootPath: t.TempDir()},
	}
	creds := mapCreds{"nas": "pw"}
	logger := &recordingLogger{}

	var builds atomic.Int32
	r := New(configs, creds, logger)
	stub := func(ctx context.Context, cfg models.StorageConfiguration, secret storage.SecretFunc) (storage.FileRepository, error) {
		builds.Add(1)
		time.Sleep(5 * time.Millisecond)
		return &stubRepo{id: cfg.StorageID()}, nil
	}
	r.Register(models.KindSMB, stub)
	r.Register(models.KindSFTP, stub)
	r.Register(models.KindLocal, stub)
	return r, &builds, logger
}

func TestResolveCachesOneClientPerID(t *testing.T) {
	r, builds, _ := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	repos := make([]storage.FileRepository, 32)
	for i := range repos {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repos[i] = r.GetFileRepository(ctx, "nas")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, repo := range repos {
		require.NotNil(t, repo)
		assert.Same(t, repos[0], repo)
	}
}

func TestCancelledCallerDoesNotCancelSharedBuild(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var builds atomic.Int32

	r := New(mapConfigs{"nas": models.SMBConfig{ID: "nas", Name: "NAS", Host: "nas", Username: "u"}}, mapCreds{"nas": "pw"}, nil)
	r.Register(models.KindSMB, func(ctx context.Context, cfg models.StorageConfiguration, secret storage.SecretFunc) (storage.FileRepository, error) {
		builds.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &stubRepo{id: cfg.StorageID()}, nil
	})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, "nas")
		firstErr <- err
	}()
	<-started

	type result struct {
		repo storage.FileRepository
		err  error
	}
	second := make(chan result, 1)
	go func() {
		repo, err := r.Resolve(context.Background(), "nas")
		second <- result{repo, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(10 * time.Millisecond)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	require.NotNil(t, res.repo)
	assert.Equal(t, "nas", res.repo.(*stubRepo).id)
	assert.Equal(t, int32(1), builds.Load())
}

func TestGetFileRepositoryMissing(t *testing.T) {
	r, builds, logger := newTestRegistry(t)
	ctx := context.Background()

	assert.Nil(t, r.GetFileRepository(ctx, "unknown"))
	assert.Nil(t, r.GetFileRepository(ctx, "box"), "SFTP storage without a credential")
	assert.Equal(t, int32(0), builds.Load())

	assert.Equal(t, []string{"Storage configuration not found", "Credential missing for storage"}, logger.msgs)

	_, err := r.Resolve(ctx, "box")
	assert.ErrorIs(t, err, models.ErrCredentialMissing)
	_, err = r.Resolve(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrStorageNotFound)
}

func TestLocalNeedsNoCredential(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	assert.NotNil(t, r.GetFileRepository(context.Background(), "local"))
}

func TestUnregisteredKind(t *testing.T) {
	configs := mapConfigs{"sp": models.SharePointConfig{ID: "sp", Name: "SP", ObjectID: "o", TenantID: "t", ClientID: "c"}}
	r := New(configs, mapCreds{"sp": "secret"}, nil)
	_, err := r.Resolve(context.Background(), "sp")
	assert.ErrorIs(t, err, models.ErrUnsupported)
}

func TestSecretIsResolvedPerCall(t *testing.T) {
	creds := mapCreds{"nas": "first"}
	r := New(mapConfigs{"nas": models.SMBConfig{ID: "nas", Name: "NAS", Host: "h", Username: "u"}}, creds, nil)

	var secret storage.SecretFunc
	r.Register(models.KindSMB, func(ctx context.Context, cfg models.StorageConfiguration, s storage.SecretFunc) (storage.FileRepository, error) {
		secret = s
		return &stubRepo{}, nil
	})
	_, err := r.Resolve(context.Background(), "nas")
	require.NoError(t, err)

	creds["nas"] = "rotated"
	got, err := secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", got)
}

func TestEvictAndClose(t *testing.T) {
	r, builds, _ := newTestRegistry(t)
	ctx := context.Background()

	first := r.GetFileRepository(ctx, "nas").(*stubRepo)
	require.NoError(t, r.Evict("nas"))
	assert.True(t, first.closed.Load())

	second := r.GetFileRepository(ctx, "nas").(*stubRepo)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), builds.Load())

	local := r.GetFileRepository(ctx, "local").(*stubRepo)
	require.NoError(t, r.Close())
	assert.True(t, second.closed.Load())
	assert.True(t, local.closed.Load())

	assert.NoError(t, r.Evict("never-built"))
}

func TestRegisterDefaults(t *testing.T) {
	root := t.TempDir()
	configs := mapConfigs{
		"local": models.LocalConfig{ID: "local", Name: "Local", RootPath: root},
		"nas":   models.SMBConfig{ID: "nas", Name: "NAS", Host: "nas", Username: "u"},
		"box":   models.SFTPConfig{ID: "box", Name: "Box", Host: "box", Username: "u"},
		"sp":    models.SharePointConfig{ID: "sp", Name: "SP", ObjectID: "o", TenantID: "t", ClientID: "c"},
	}
	creds := mapCreds{"nas": "pw", "box": "pw", "sp": "secret"}
	r := New(configs, creds, nil)
	r.RegisterDefaults(Settings{Storage: storage.Options{Logger: logging.NewNullLogger()}})
	defer r.Close()

	ctx := context.Background()
	assert.IsType(t, &storage.Local{}, r.GetFileRepository(ctx, "local"))
	assert.IsType(t, &storage.SMB{}, r.GetFileRepository(ctx, "nas"))
	assert.IsType(t, &storage.SFTP{}, r.GetFileRepository(ctx, "box"))
	assert.IsType(t, &storage.SharePoint{}, r.GetFileRepository(ctx, "sp"))

	rc, err := r.GetFileRepository(ctx, "local").GetFiles(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, rc)
}
