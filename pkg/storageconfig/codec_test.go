package storageconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sdejongh/filenorris/pkg/models"
)

func TestEncodeDecode_Variants(t *testing.T) {
	configs := []models.StorageConfiguration{
		models.SMBConfig{ID: "1", Name: "NAS", Host: "nas", Port: 1445, Domain: "WORK", Username: "admin"},
		models.SFTPConfig{ID: "2", Name: "srv", Host: "srv", Port: 2222, Username: "u", StartDir: "/data"},
		models.SharePointConfig{ID: "3", Name: "sp", ObjectID: "site", TenantID: "t", ClientID: "c", DriveID: "d"},
		models.LocalConfig{ID: "4", Name: "home", RootPath: "/home/me"},
	}

	for _, cfg := range configs {
		t.Run(string(cfg.Kind()), func(t *testing.T) {
			b, err := Encode(cfg)
			require.NoError(t, err)
			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	b, err := Encode(models.LocalConfig{ID: "4", Name: "home", RootPath: "/home"})
	require.NoError(t, err)

	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "from the future")
	b = protowire.AppendTag(b, 98, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "home", got.DisplayName())
}

func TestDecode_Rejects(t *testing.T) {
	future := protowire.AppendTag(nil, fieldVersion, protowire.VarintType)
	future = protowire.AppendVarint(future, SchemaVersion+1)

	unknownKind := protowire.AppendTag(nil, fieldVersion, protowire.VarintType)
	unknownKind = protowire.AppendVarint(unknownKind, SchemaVersion)
	unknownKind = protowire.AppendTag(unknownKind, fieldKind, protowire.BytesType)
	unknownKind = protowire.AppendString(unknownKind, "ftp")
	unknownKind = protowire.AppendTag(unknownKind, fieldID, protowire.BytesType)
	unknownKind = protowire.AppendString(unknownKind, "x")

	invalid, err := Encode(models.SMBConfig{ID: "1", Name: "NAS", Username: "u"})
	require.NoError(t, err)

	tests := map[string][]byte{
		"Empty":         {},
		"Truncated":     {0x0a, 0x05, 'a'},
		"FutureVersion": future,
		"UnknownKind":   unknownKind,
		"FailsValidate": invalid,
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(b)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}
