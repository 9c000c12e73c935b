package storage

import (
	"context"
	"reflect"
	"testing"

	"github.com/sdejongh/filenorris/pkg/models"
)

type listingKey struct {
	IsDir        bool
	Size         int64
	LastModified int64
}

func listingSet(items []models.FileItem) map[string]listingKey {
	set := make(map[string]listingKey, len(items))
	for _, it := range items {
		set[it.Path] = listingKey{IsDir: it.IsDir, Size: it.Size, LastModified: it.LastModified}
	}
	return set
}

func TestGetFilesRepeatable(t *testing.T) {
	tests := []struct {
		name  string
		repo  func(t *testing.T) FileRepository
		paths []string
	}{
		{
			name: "Local",
			repo: func(t *testing.T) FileRepository {
				root := tempDir(t)
				makeTree(t, root, map[string][]byte{
					"docs/a.txt": []byte("alpha"),
					"docs/sub/":  nil,
					"top.bin":    []byte{1, 2, 3},
				})
				repo, err := NewLocal(root, Options{})
				if err != nil {
					t.Fatalf("NewLocal() error = %v", err)
				}
				return repo
			},
			paths: []string{"", "docs", "docs/sub"},
		},
		{
			name: "SMB",
			repo: func(t *testing.T) FileRepository {
				repo, _ := newFakeSMB(t)
				return repo
			},
			paths: []string{"", "media", "media/photos", "backup"},
		},
		{
			name: "SFTP",
			repo: func(t *testing.T) FileRepository {
				repo, _ := newFakeSFTP(t, "home/joe")
				return repo
			},
			paths: []string{"", "pics"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := tt.repo(t)
			ctx := context.Background()

			for _, p := range tt.paths {
				first, err := repo.GetFiles(ctx, p)
				if err != nil {
					t.Fatalf("GetFiles(%q) error = %v", p, err)
				}
				second, err := repo.GetFiles(ctx, p)
				if err != nil {
					t.Fatalf("second GetFiles(%q) error = %v", p, err)
				}

				a, b := listingSet(first), listingSet(second)
				if len(a) != len(first) {
					t.Errorf("GetFiles(%q) returned duplicate paths: %+v", p, first)
				}
				if !reflect.DeepEqual(a, b) {
					t.Errorf("GetFiles(%q) changed between calls:\n first  %+v\n second %+v", p, a, b)
				}
			}
		})
	}
}
