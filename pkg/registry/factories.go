package registry

import (
	"context"
	"fmt"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/storage"
)

// Settings carry backend options shared by every repository
type Settings struct {
	Storage    storage.Options
	SFTP       storage.SFTPOptions
	SharePoint storage.SharePointOptions
}

// RegisterDefaults installs the factories for every built-in storage kind
func (r *Registry) RegisterDefaults(settings Settings) {
	opts := func(cfg models.StorageConfiguration) storage.Options {
		o := settings.Storage
		if o.Logger != nil {
			o.Logger = o.Logger.WithFields(logging.Fields{"storage_id": cfg.StorageID()})
		}
		return o
	}

	r.Register(models.KindLocal, func(ctx context.Context, cfg models.StorageConfiguration, secret storage.SecretFunc) (storage.FileRepository, error) {
		c, ok := cfg.(models.LocalConfig)
		if !ok {
			return nil, fmt.Errorf("unexpected config type %T", cfg)
		}
		return storage.NewLocal(c.RootPath, opts(cfg))
	})

	r.Register(models.KindSMB, func(ctx context.Context, cfg models.StorageConfiguration, secret storage.SecretFunc) (storage.FileRepository, error) {
		c, ok := cfg.(models.SMBConfig)
		if !ok {
			return nil, fmt.Errorf("unexpected config type %T", cfg)
		}
		return storage.NewSMB(c, secret, opts(cfg)), nil
	})

	r.Register(models.KindSFTP, func(ctx context.Context, cfg models.StorageConfiguration, secret storage.SecretFunc) (storage.FileRepository, error) {
		c, ok := cfg.(models.SFTPConfig)
		if !ok {
			return nil, fmt.Errorf("unexpected config type %T", cfg)
		}
		return storage.NewSFTP(c, secret, settings.SFTP, opts(cfg)), nil
	})

	r.Register(models.KindSharePoint, func(ctx context.Context, cfg models.StorageConfiguration, secret storage.SecretFunc) (storage.FileRepository, error) {
		c, ok := cfg.(models.SharePointConfig)
		if !ok {
			return nil, fmt.Errorf("unexpected config type %T", cfg)
		}
		return storage.NewSharePoint(c, secret, settings.SharePoint, opts(cfg)), nil
	})
}
