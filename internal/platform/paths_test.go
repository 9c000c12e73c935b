package platform

import (
	"errors"
	"testing"

	"github.com/sdejongh/filenorris/pkg/models"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"/", "", false},
		{".", "", false},
		{"docs", "docs", false},
		{"/docs/reports/", "docs/reports", false},
		{"docs//reports", "docs/reports", false},
		{"docs\\reports", "docs/reports", false},
		{"docs/./reports", "docs/reports", false},
		{"../etc", "", true},
		{"docs/../../etc", "", true},
	}

	for _, tt := range tests {
		got, err := CleanPath(tt.in)
		if tt.wantErr {
			if !errors.Is(err, models.ErrInvalidPath) {
				t.Errorf("CleanPath(%q) error = %v, want ErrInvalidPath", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("CleanPath(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoinPath(t *testing.T) {
	if got := JoinPath("", "a.txt"); got != "a.txt" {
		t.Errorf("JoinPath(\"\", a.txt) = %q", got)
	}
	if got := JoinPath("docs/", "/sub", "a.txt"); got != "docs/sub/a.txt" {
		t.Errorf("JoinPath() = %q", got)
	}
}

func TestValidateName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", "a\\b"} {
		if err := ValidateName(bad); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", bad)
		}
	}
	if err := ValidateName("report.pdf"); err != nil {
		t.Errorf("ValidateName(report.pdf) = %v", err)
	}
}

func TestSMBPaths(t *testing.T) {
	if got := ToSMBPath("photos/2024/a.jpg"); got != "photos\\2024\\a.jpg" {
		t.Errorf("ToSMBPath() = %q", got)
	}
	if got := FromSMBPath("photos\\2024"); got != "photos/2024" {
		t.Errorf("FromSMBPath() = %q", got)
	}

	share, rest := SplitShare("media/photos/2024")
	if share != "media" || rest != "photos/2024" {
		t.Errorf("SplitShare() = %q, %q", share, rest)
	}
	share, rest = SplitShare("media")
	if share != "media" || rest != "" {
		t.Errorf("SplitShare(media) = %q, %q", share, rest)
	}
}

func TestParseUNCPath(t *testing.T) {
	tests := []struct {
		in                string
		host, share, rest string
	}{
		{`\\nas\media\photos\2024`, "nas", "media", "photos/2024"},
		{"//nas/media", "nas", "media", ""},
		{`\\nas`, "nas", "", ""},
		{"/local/path", "", "", ""},
	}

	for _, tt := range tests {
		host, share, rest := ParseUNCPath(tt.in)
		if host != tt.host || share != tt.share || rest != tt.rest {
			t.Errorf("ParseUNCPath(%q) = %q, %q, %q; want %q, %q, %q",
				tt.in, host, share, rest, tt.host, tt.share, tt.rest)
		}
	}
}
