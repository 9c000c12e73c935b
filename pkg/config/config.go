package config

import (
	"path/filepath"
	"time"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/ratelimit"
	"github.com/sdejongh/filenorris/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	// DataDir holds the database and key material
	DataDir    string           `yaml:"data_dir"`
	Database   DatabaseConfig   `yaml:"database"`
	Keystore   KeystoreConfig   `yaml:"keystore"`
	Listing    ListingConfig    `yaml:"listing"`
	Thumbnails ThumbnailConfig  `yaml:"thumbnails"`
	SMB        SMBConfig        `yaml:"smb"`
	SFTP       SFTPConfig       `yaml:"sftp"`
	SharePoint SharePointConfig `yaml:"sharepoint"`
	Transfer   TransferConfig   `yaml:"transfer"`
	Aggregate  AggregateConfig  `yaml:"aggregate"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig locates the SQLite database
type DatabaseConfig struct {
	Path string `yaml:"path"` // empty = <data_dir>/filenorris.db
}

// KeystoreConfig selects where the credential encryption key comes from
type KeystoreConfig struct {
	Type string `yaml:"type"` // "file" or "passphrase"
	Dir  string `yaml:"dir"`  // empty = <data_dir>/keys

	// Passphrase is only read from the environment
	Passphrase string `yaml:"-"`
}

// ListingConfig holds the sort orders used until preferences are saved
type ListingConfig struct {
	FolderSort string `yaml:"folder_sort"`
	FileSort   string `yaml:"file_sort"`
}

// ThumbnailConfig holds preview settings
type ThumbnailConfig struct {
	Size    int `yaml:"size"`
	Quality int `yaml:"quality"`
}

// SMBConfig holds SMB defaults
type SMBConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// SFTPConfig holds SFTP defaults
type SFTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	KnownHosts string        `yaml:"known_hosts"`
	StartDir   string        `yaml:"start_dir"`
}

// SharePointConfig holds Microsoft Graph settings
type SharePointConfig struct {
	AuthorityURL string `yaml:"authority_url"`
	GraphURL     string `yaml:"graph_url"`
	RetryMax     int    `yaml:"retry_max"`
	PageSize     int    `yaml:"page_size"`
}

// TransferConfig holds upload settings
type TransferConfig struct {
	BandwidthLimit string   `yaml:"bandwidth_limit"` // e.g. "10MB", empty = unlimited
	Exclude        []string `yaml:"exclude"`
}

// AggregateConfig bounds tree walks; 0 means unlimited
type AggregateConfig struct {
	MaxDepth int `yaml:"max_depth"`
	MaxItems int `yaml:"max_items"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars on terminals
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "json" or "text"
	Level   string `yaml:"level"`  // "debug", "info", "warn", "error"
	File    string `yaml:"file"`   // Log file path (empty = stderr)
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		DataDir: platform.DefaultDataDir(),
		Keystore: KeystoreConfig{
			Type: "file",
		},
		Listing: ListingConfig{
			FolderSort: "name:asc",
			FileSort:   "name:asc",
		},
		Thumbnails: ThumbnailConfig{
			Size:    256,
			Quality: 80,
		},
		SMB: SMBConfig{
			Port:    445,
			Timeout: storage.DefaultDialTimeout,
		},
		SFTP: SFTPConfig{
			Timeout:  storage.DefaultDialTimeout,
			StartDir: ".",
		},
		SharePoint: SharePointConfig{
			AuthorityURL: storage.DefaultAuthorityURL,
			GraphURL:     storage.DefaultGraphURL,
			RetryMax:     3,
			PageSize:     200,
		},
		Transfer: TransferConfig{
			Exclude: []string{
				"*.tmp",
				".DS_Store",
				"Thumbs.db",
			},
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Format:  "text",
			Level:   "warn",
			File:    "",
		},
	}
}

// DatabasePath returns the effective database file
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return platform.ExpandHome(c.Database.Path)
	}
	return filepath.Join(platform.ExpandHome(c.DataDir), "filenorris.db")
}

// KeystoreDir returns the effective key directory
func (c *Config) KeystoreDir() string {
	if c.Keystore.Dir != "" {
		return platform.ExpandHome(c.Keystore.Dir)
	}
	return filepath.Join(platform.ExpandHome(c.DataDir), "keys")
}

// BandwidthLimit returns the parsed transfer limit in bytes per second
func (c *Config) BandwidthLimit() int64 {
	n, _ := ratelimit.ParseLimit(c.Transfer.BandwidthLimit)
	return n
}

// FolderSort returns the parsed default folder sort
func (c *Config) FolderSort() models.SortConfig {
	cfg, err := models.ParseSortConfig(c.Listing.FolderSort)
	if err != nil {
		return models.DefaultSortConfig()
	}
	return cfg
}

// FileSort returns the parsed default file sort
func (c *Config) FileSort() models.SortConfig {
	cfg, err := models.ParseSortConfig(c.Listing.FileSort)
	if err != nil {
		return models.DefaultSortConfig()
	}
	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return &models.ValidationError{
			Field:   "data_dir",
			Message: "must not be empty",
		}
	}

	validKeystores := map[string]bool{"file": true, "passphrase": true}
	if !validKeystores[c.Keystore.Type] {
		return &models.ValidationError{
			Field:   "keystore.type",
			Message: "must be 'file' or 'passphrase'",
		}
	}

	for field, value := range map[string]string{
		"listing.folder_sort": c.Listing.FolderSort,
		"listing.file_sort":   c.Listing.FileSort,
	} {
		if _, err := models.ParseSortConfig(value); err != nil {
			return &models.ValidationError{
				Field:   field,
				Message: "must be 'name', 'date' or 'size', optionally followed by ':asc' or ':desc'",
			}
		}
	}

	if c.Thumbnails.Size < 16 || c.Thumbnails.Size > 2048 {
		return &models.ValidationError{
			Field:   "thumbnails.size",
			Message: "must be between 16 and 2048",
		}
	}

	if c.Thumbnails.Quality < 1 || c.Thumbnails.Quality > 100 {
		return &models.ValidationError{
			Field:   "thumbnails.quality",
			Message: "must be between 1 and 100",
		}
	}

	if c.SMB.Port < 1 || c.SMB.Port > 65535 {
		return &models.ValidationError{
			Field:   "smb.port",
			Message: "must be between 1 and 65535",
		}
	}

	if c.SMB.Timeout <= 0 || c.SFTP.Timeout <= 0 {
		return &models.ValidationError{
			Field:   "timeout",
			Message: "smb.timeout and sftp.timeout must be positive",
		}
	}

	if c.SharePoint.RetryMax < 0 {
		return &models.ValidationError{
			Field:   "sharepoint.retry_max",
			Message: "must not be negative",
		}
	}

	if c.SharePoint.PageSize < 1 || c.SharePoint.PageSize > 999 {
		return &models.ValidationError{
			Field:   "sharepoint.page_size",
			Message: "must be between 1 and 999",
		}
	}

	if _, err := ratelimit.ParseLimit(c.Transfer.BandwidthLimit); err != nil {
		return &models.ValidationError{
			Field:   "transfer.bandwidth_limit",
			Message: "must be a size such as '512KiB' or '10MB'",
		}
	}

	if c.Aggregate.MaxDepth < 0 || c.Aggregate.MaxItems < 0 {
		return &models.ValidationError{
			Field:   "aggregate",
			Message: "max_depth and max_items must not be negative",
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	return nil
}
