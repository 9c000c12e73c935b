package models

import (
	"errors"
	"testing"
	"time"
)

// ============== FileItem Tests ==============

func TestNewFileItem(t *testing.T) {
	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("File", func(t *testing.T) {
		item := NewFileItem("a.txt", "dir/a.txt", false, 1024, mod)
		if item.Size != 1024 {
			t.Errorf("Size = %d, want 1024", item.Size)
		}
		if item.LastModified != mod.UnixMilli() {
			t.Errorf("LastModified = %d, want %d", item.LastModified, mod.UnixMilli())
		}
		if !item.ModTime().Equal(mod) {
			t.Errorf("ModTime() = %v, want %v", item.ModTime(), mod)
		}
	})

	t.Run("DirectorySizeIsZero", func(t *testing.T) {
		item := NewFileItem("dir", "dir", true, 4096, mod)
		if item.Size != 0 {
			t.Errorf("Size = %d, want 0 for directory", item.Size)
		}
	})

	t.Run("ZeroModTime", func(t *testing.T) {
		item := NewFileItem("a", "a", false, 1, time.Time{})
		if item.LastModified != 0 {
			t.Errorf("LastModified = %d, want 0", item.LastModified)
		}
	})
}

func TestFileObjectID(t *testing.T) {
	root := RootObject()
	if !root.IsRoot() {
		t.Error("RootObject().IsRoot() should be true")
	}
	if root.String() != "root" {
		t.Errorf("String() = %s, want root", root.String())
	}

	item := ItemObject("01ABC")
	if item.IsRoot() {
		t.Error("ItemObject().IsRoot() should be false")
	}
	if item.ID() != "01ABC" {
		t.Errorf("ID() = %s, want 01ABC", item.ID())
	}
}

// ============== StorageConfiguration Tests ==============

func TestStorageConfigurationValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StorageConfiguration
		field   string
		wantErr bool
	}{
		{"ValidSMB", SMBConfig{Name: "NAS", Host: "192.168.1.10", Username: "admin"}, "", false},
		{"SMBMissingHost", SMBConfig{Name: "NAS", Username: "admin"}, "host", true},
		{"SMBMissingUser", SMBConfig{Name: "NAS", Host: "nas"}, "username", true},
		{"SFTPBadPort", SFTPConfig{Name: "srv", Host: "h", Username: "u", Port: 70000}, "port", true},
		{"ValidSFTP", SFTPConfig{Name: "srv", Host: "h", Username: "u", Port: 2222}, "", false},
		{"SharePointMissingTenant", SharePointConfig{Name: "sp", ObjectID: "site", ClientID: "c"}, "tenant_id", true},
		{"ValidSharePoint", SharePointConfig{Name: "sp", ObjectID: "site", TenantID: "t", ClientID: "c"}, "", false},
		{"LocalMissingRoot", LocalConfig{Name: "home"}, "root_path", true},
		{"ValidLocal", LocalConfig{Name: "home", RootPath: "/tmp"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error type = %T, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("ValidationError.Field = %s, want %s", ve.Field, tt.field)
			}
		})
	}
}

func TestWithID(t *testing.T) {
	cfg := SMBConfig{Name: "NAS", Host: "nas", Username: "admin"}
	withID := WithID(cfg, "abc")

	if withID.StorageID() != "abc" {
		t.Errorf("StorageID() = %s, want abc", withID.StorageID())
	}
	if cfg.ID != "" {
		t.Error("WithID should not mutate the original")
	}
	if withID.Kind() != KindSMB {
		t.Errorf("Kind() = %s, want smb", withID.Kind())
	}
}

func TestRequiresCredential(t *testing.T) {
	if RequiresCredential(LocalConfig{}) {
		t.Error("local storage should not require a credential")
	}
	if !RequiresCredential(SFTPConfig{}) {
		t.Error("sftp storage should require a credential")
	}
}

func TestAddress(t *testing.T) {
	if got := (SMBConfig{Host: "nas"}).Address(); got != "nas:445" {
		t.Errorf("Address() = %s, want nas:445", got)
	}
	if got := (SFTPConfig{Host: "::1", Port: 2222}).Address(); got != "[::1]:2222" {
		t.Errorf("Address() = %s, want [::1]:2222", got)
	}
}

func TestParseStorageKind(t *testing.T) {
	for _, s := range []string{"smb", "SFTP", "sharepoint", "local"} {
		if _, err := ParseStorageKind(s); err != nil {
			t.Errorf("ParseStorageKind(%q) error = %v", s, err)
		}
	}
	if _, err := ParseStorageKind("ftp"); err == nil {
		t.Error("ParseStorageKind(ftp) should fail")
	}
}

// ============== SortConfig Tests ==============

func TestParseSortConfig(t *testing.T) {
	tests := []struct {
		in      string
		want    SortConfig
		wantErr bool
	}{
		{"name", SortConfig{Key: SortByName}, false},
		{"size:desc", SortConfig{Key: SortBySize, Descending: true}, false},
		{"modified:asc", SortConfig{Key: SortByDate}, false},
		{"DATE:DESC", SortConfig{Key: SortByDate, Descending: true}, false},
		{"color", SortConfig{}, true},
		{"name:sideways", SortConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortConfig(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSortConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSortConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if s := (SortConfig{Key: SortBySize, Descending: true}).String(); s != "size:desc" {
		t.Errorf("String() = %s, want size:desc", s)
	}
}

// ============== UploadReport Tests ==============

func TestUploadReportFinalize(t *testing.T) {
	start := time.Now()
	tests := []struct {
		name  string
		stats UploadStats
		want  UploadStatus
		code  int
	}{
		{"AllUploaded", UploadStats{FilesUploaded: 3}, StatusSuccess, 0},
		{"SomeFailed", UploadStats{FilesUploaded: 2, FilesFailed: 1}, StatusPartial, 1},
		{"AllFailed", UploadStats{FilesFailed: 2}, StatusFailed, 2},
		{"Cancelled", UploadStats{FilesUploaded: 1, FilesCancelled: 1}, StatusCancelled, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &UploadReport{StartTime: start, Stats: tt.stats}
			r.Finalize(start.Add(time.Second))
			if r.Status != tt.want {
				t.Errorf("Status = %s, want %s", r.Status, tt.want)
			}
			if r.Status.ExitCode() != tt.code {
				t.Errorf("ExitCode() = %d, want %d", r.Status.ExitCode(), tt.code)
			}
			if r.Duration != time.Second {
				t.Errorf("Duration = %v, want 1s", r.Duration)
			}
		})
	}
}

func TestUploadJobErrorMessage(t *testing.T) {
	job := &UploadJob{}
	if job.ErrorMessage() != "" {
		t.Error("ErrorMessage() should be empty without error")
	}
	job.Err = errors.New("connection reset")
	if job.ErrorMessage() != "connection reset" {
		t.Errorf("ErrorMessage() = %s, want connection reset", job.ErrorMessage())
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "TestField",
		Message: "test message",
	}

	expected := "TestField: test message"
	if err.Error() != expected {
		t.Errorf("Error() = %s, want %s", err.Error(), expected)
	}
}
