package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sdejongh/filenorris/pkg/browse"
	"github.com/sdejongh/filenorris/pkg/config"
	"github.com/sdejongh/filenorris/pkg/credentials"
	"github.com/sdejongh/filenorris/pkg/imageload"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/preferences"
	"github.com/sdejongh/filenorris/pkg/registry"
	"github.com/sdejongh/filenorris/pkg/storage"
	"github.com/sdejongh/filenorris/pkg/storageconfig"
	"github.com/sdejongh/filenorris/pkg/store"
)

// app wires the stores and services used by commands
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	db       *sql.DB
	creds    *credentials.Store
	configs  *storageconfig.Store
	prefs    *preferences.Store
	registry *registry.Registry
}

// exitError carries a process exit code without printing anything
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// ExitCode returns the code main should exit with for err
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// IsSilent reports whether err has already been reported to the user
func IsSilent(err error) bool {
	var ee *exitError
	return errors.As(err, &ee)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigFile, globalFlags.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if globalFlags.Output != "" {
		cfg.Output.Format = globalFlags.Output
	}
	return cfg, cfg.Validate()
}

// openApp loads configuration, opens the database and builds the services
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := createLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	keys, err := createKeyStore(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	db, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		logger.Close()
		return nil, err
	}

	creds, err := credentials.NewStore(db, keys, logger)
	if err != nil {
		db.Close()
		logger.Close()
		return nil, err
	}

	configs := storageconfig.NewStore(db, creds, logger)
	reg := registry.New(configs, creds, logger)
	reg.RegisterDefaults(registry.Settings{
		Storage: storage.Options{
			Logger:           logger,
			ThumbnailQuality: cfg.Thumbnails.Quality,
			DialTimeout:      cfg.SMB.Timeout,
		},
		SFTP: storage.SFTPOptions{
			KnownHostsPath: cfg.SFTP.KnownHosts,
			DialTimeout:    cfg.SFTP.Timeout,
		},
		SharePoint: storage.SharePointOptions{
			AuthorityURL: cfg.SharePoint.AuthorityURL,
			GraphURL:     cfg.SharePoint.GraphURL,
			RetryMax:     cfg.SharePoint.RetryMax,
			PageSize:     cfg.SharePoint.PageSize,
		},
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		creds:    creds,
		configs:  configs,
		prefs:    preferences.NewStore(db, logger),
		registry: reg,
	}, nil
}

// Close releases every repository, the database and the logger
func (a *app) Close() error {
	return errors.Join(a.registry.Close(), a.db.Close(), a.logger.Close())
}

func (a *app) browser() *browse.Service {
	return browse.NewService(a.registry, browse.Limits{
		MaxDepth: a.cfg.Aggregate.MaxDepth,
		MaxItems: a.cfg.Aggregate.MaxItems,
	}, a.logger)
}

func (a *app) fetcher() *imageload.Fetcher {
	return imageload.NewFetcher(a.registry, a.logger)
}

func (a *app) jsonOutput() bool {
	return a.cfg.Output.Format == "json"
}

func createKeyStore(cfg *config.Config) (credentials.KeyStore, error) {
	dir := cfg.KeystoreDir()
	if cfg.Keystore.Type != "passphrase" {
		return credentials.NewFileKeyStore(dir), nil
	}

	passphrase := cfg.Keystore.Passphrase
	if passphrase == "" {
		var err error
		passphrase, err = readSecret("Keystore passphrase: ")
		if err != nil {
			return nil, err
		}
	}
	return credentials.NewPassphraseKeyStore(dir, passphrase)
}

// createLogger creates a logger based on configuration and flags
func createLogger(cfg *config.Config) (logging.Logger, error) {
	level := cfg.Logging.Level
	switch {
	case globalFlags.LogLevel != "":
		level = globalFlags.LogLevel
	case globalFlags.Verbose:
		level = "debug"
	case globalFlags.Quiet:
		level = "error"
	}

	format := logging.FormatText
	if cfg.Logging.Format == "json" {
		format = logging.FormatJSON
	}

	logFile := cfg.Logging.File
	if globalFlags.LogFile != "" {
		logFile = globalFlags.LogFile
	}

	if logFile != "" {
		return logging.NewFileLogger(logging.FileLoggerConfig{
			Path:       logFile,
			Format:     format,
			Level:      logging.ParseLevel(level),
			MaxSize:    10 * 1024 * 1024, // 10 MB
			MaxBackups: 5,
		})
	}

	if !cfg.Logging.Enabled {
		return logging.NewNullLogger(), nil
	}
	return logging.NewLogger(os.Stderr, format, logging.ParseLevel(level)), nil
}

// stdout honours --quiet for informational lines
func stdout() io.Writer {
	if globalFlags.Quiet {
		return io.Discard
	}
	return os.Stdout
}
