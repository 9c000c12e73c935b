// Package preferences persists small user settings such as the folder and
// file sort orders used by listings.
package preferences

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
	"github.com/sdejongh/filenorris/pkg/store"
)

const (
	keyFolderSort    = "sort.folders"
	keyFileSort      = "sort.files"
	keyThumbnailSize = "thumbnail.size"

	schemaVersion = 1

	// DefaultThumbnailSize is the longest thumbnail edge in pixels
	DefaultThumbnailSize = 256
)

var errCorrupt = errors.New("corrupt preference")

// Store reads and writes preferences. Undecodable values are reset to their
// defaults rather than reported.
type Store struct {
	kv     *store.KV
	logger logging.Logger
}

// NewStore creates a preference store over db
func NewStore(db store.DBTX, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Store{kv: store.NewKV(db, store.TablePreferences), logger: logger}
}

// FolderSort returns the sort applied to directories and aggregated groups
func (s *Store) FolderSort(ctx context.Context) (models.SortConfig, error) {
	return s.sortConfig(ctx, keyFolderSort)
}

// SetFolderSort stores the folder sort
func (s *Store) SetFolderSort(ctx context.Context, cfg models.SortConfig) error {
	return s.setSortConfig(ctx, keyFolderSort, cfg)
}

// FileSort returns the sort applied to files
func (s *Store) FileSort(ctx context.Context) (models.SortConfig, error) {
	return s.sortConfig(ctx, keyFileSort)
}

// SetFileSort stores the file sort
func (s *Store) SetFileSort(ctx context.Context, cfg models.SortConfig) error {
	return s.setSortConfig(ctx, keyFileSort, cfg)
}

// ThumbnailSize returns the preferred thumbnail edge in pixels
func (s *Store) ThumbnailSize(ctx context.Context) (int, error) {
	b, err := s.kv.Get(ctx, keyThumbnailSize)
	if err != nil || b == nil {
		return DefaultThumbnailSize, err
	}
	fields, err := decode(b)
	if err == nil && (fields[2] == 0 || fields[2] > 4096) {
		err = fmt.Errorf("%w: thumbnail size %d", errCorrupt, fields[2])
	}
	if err != nil {
		s.reset(ctx, keyThumbnailSize, err)
		return DefaultThumbnailSize, nil
	}
	return int(fields[2]), nil
}

// SetThumbnailSize stores the preferred thumbnail edge
func (s *Store) SetThumbnailSize(ctx context.Context, size int) error {
	if size <= 0 || size > 4096 {
		return &models.ValidationError{Field: "thumbnail.size", Message: "must be between 1 and 4096"}
	}
	return s.kv.Set(ctx, keyThumbnailSize, encode(map[protowire.Number]uint64{2: uint64(size)}))
}

// Sort field layout: 2 = key index, 3 = descending flag
var sortKeys = []models.SortKey{models.SortByName, models.SortByDate, models.SortBySize}

func (s *Store) sortConfig(ctx context.Context, key string) (models.SortConfig, error) {
	b, err := s.kv.Get(ctx, key)
	if err != nil || b == nil {
		return models.DefaultSortConfig(), err
	}

	fields, err := decode(b)
	if err == nil && fields[2] >= uint64(len(sortKeys)) {
		err = fmt.Errorf("%w: sort key index %d", errCorrupt, fields[2])
	}
	if err != nil {
		s.reset(ctx, key, err)
		return models.DefaultSortConfig(), nil
	}

	return models.SortConfig{Key: sortKeys[fields[2]], Descending: fields[3] != 0}, nil
}

func (s *Store) setSortConfig(ctx context.Context, key string, cfg models.SortConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var idx uint64
	for i, k := range sortKeys {
		if k == cfg.Key {
			idx = uint64(i)
		}
	}
	var desc uint64
	if cfg.Descending {
		desc = 1
	}
	return s.kv.Set(ctx, key, encode(map[protowire.Number]uint64{2: idx, 3: desc}))
}

func (s *Store) reset(ctx context.Context, key string, cause error) {
	s.logger.Warn(ctx, "resetting corrupt preference", logging.Fields{"key": key, "error": cause.Error()})
	if err := s.kv.Delete(ctx, key); err != nil {
		s.logger.Error(ctx, "failed to reset preference", err, logging.Fields{"key": key})
	}
}

// encode writes field 1 = schema version followed by the given varints
func encode(fields map[protowire.Number]uint64) []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, schemaVersion)
	for n := protowire.Number(2); n <= 3; n++ {
		if v, ok := fields[n]; ok {
			b = protowire.AppendTag(b, n, protowire.VarintType)
			b = protowire.AppendVarint(b, v)
		}
	}
	return b
}

func decode(b []byte) (map[protowire.Number]uint64, error) {
	fields := map[protowire.Number]uint64{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errCorrupt, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", errCorrupt, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errCorrupt, protowire.ParseError(n))
		}
		b = b[n:]
		fields[num] = v
	}
	if fields[1] != schemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", errCorrupt, fields[1])
	}
	return fields, nil
}
