package storageconfig

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sdejongh/filenorris/pkg/models"
)

// SchemaVersion is written into every record. Decoding rejects newer versions.
const SchemaVersion = 1

// ErrMalformed marks a record that cannot be decoded into a configuration
var ErrMalformed = errors.New("malformed storage record")

// Record field numbers. Numbers are never reused; unknown numbers are skipped
// on decode so older binaries can read records written by newer ones.
const (
	fieldVersion protowire.Number = 1
	fieldKind    protowire.Number = 2
	fieldID      protowire.Number = 3
	fieldName    protowire.Number = 4

	fieldSMBHost     protowire.Number = 10
	fieldSMBPort     protowire.Number = 11
	fieldSMBUsername protowire.Number = 12
	fieldSMBDomain   protowire.Number = 13

	fieldSFTPHost     protowire.Number = 20
	fieldSFTPPort     protowire.Number = 21
	fieldSFTPUsername protowire.Number = 22
	fieldSFTPStartDir protowire.Number = 23

	fieldSPObjectID protowire.Number = 30
	fieldSPTenantID protowire.Number = 31
	fieldSPClientID protowire.Number = 32
	fieldSPDriveID  protowire.Number = 33

	fieldLocalRoot protowire.Number = 40
)

type recordWriter struct {
	b []byte
}

func (w *recordWriter) str(n protowire.Number, s string) {
	if s == "" {
		return
	}
	w.b = protowire.AppendTag(w.b, n, protowire.BytesType)
	w.b = protowire.AppendString(w.b, s)
}

func (w *recordWriter) uint(n protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	w.b = protowire.AppendTag(w.b, n, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, v)
}

// Encode serializes the non-secret fields of cfg
func Encode(cfg models.StorageConfiguration) ([]byte, error) {
	w := &recordWriter{}
	w.uint(fieldVersion, SchemaVersion)
	w.str(fieldKind, string(cfg.Kind()))
	w.str(fieldID, cfg.StorageID())
	w.str(fieldName, cfg.DisplayName())

	switch c := cfg.(type) {
	case models.SMBConfig:
		w.str(fieldSMBHost, c.Host)
		w.uint(fieldSMBPort, uint64(c.Port))
		w.str(fieldSMBUsername, c.Username)
		w.str(fieldSMBDomain, c.Domain)
	case models.SFTPConfig:
		w.str(fieldSFTPHost, c.Host)
		w.uint(fieldSFTPPort, uint64(c.Port))
		w.str(fieldSFTPUsername, c.Username)
		w.str(fieldSFTPStartDir, c.StartDir)
	case models.SharePointConfig:
		w.str(fieldSPObjectID, c.ObjectID)
		w.str(fieldSPTenantID, c.TenantID)
		w.str(fieldSPClientID, c.ClientID)
		w.str(fieldSPDriveID, c.DriveID)
	case models.LocalConfig:
		w.str(fieldLocalRoot, c.RootPath)
	default:
		return nil, fmt.Errorf("unsupported configuration type %T", cfg)
	}
	return w.b, nil
}

// Decode parses a record. Any structural problem, unknown kind or failed
// validation is reported as ErrMalformed.
func Decode(b []byte) (models.StorageConfiguration, error) {
	var (
		version uint64
		kind    string
		strs    = map[protowire.Number]string{}
		ints    = map[protowire.Number]uint64{}
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldVersion {
				version = v
			} else {
				ints[num] = v
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldKind {
				kind = v
			} else {
				strs[num] = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if version == 0 || version > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrMalformed, version)
	}

	id, name := strs[fieldID], strs[fieldName]
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}

	var cfg models.StorageConfiguration
	switch models.StorageKind(kind) {
	case models.KindSMB:
		cfg = models.SMBConfig{
			ID:       id,
			Name:     name,
			Host:     strs[fieldSMBHost],
			Port:     int(ints[fieldSMBPort]),
			Username: strs[fieldSMBUsername],
			Domain:   strs[fieldSMBDomain],
		}
	case models.KindSFTP:
		cfg = models.SFTPConfig{
			ID:       id,
			Name:     name,
			Host:     strs[fieldSFTPHost],
			Port:     int(ints[fieldSFTPPort]),
			Username: strs[fieldSFTPUsername],
			StartDir: strs[fieldSFTPStartDir],
		}
	case models.KindSharePoint:
		cfg = models.SharePointConfig{
			ID:       id,
			Name:     name,
			ObjectID: strs[fieldSPObjectID],
			TenantID: strs[fieldSPTenantID],
			ClientID: strs[fieldSPClientID],
			DriveID:  strs[fieldSPDriveID],
		}
	case models.KindLocal:
		cfg = models.LocalConfig{
			ID:       id,
			Name:     name,
			RootPath: strs[fieldLocalRoot],
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cfg, nil
}
