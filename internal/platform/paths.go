// Package platform holds path conventions shared by the storage backends
// and the command line.
package platform

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sdejongh/filenorris/pkg/models"
)

// AppName names the per-user config and data directories
const AppName = "filenorris"

// CleanPath normalizes a backend-relative path to its '/'-separated form
// without leading or trailing separators. The empty string is the root.
// Paths that climb above the root are rejected.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return "", nil
	}

	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", &PathError{Path: p, Message: "path escapes the storage root"}
		}
	}

	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// JoinPath joins backend-relative path elements, skipping empty ones
func JoinPath(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

// Segments splits a cleaned path into its elements
func Segments(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// ValidateName checks a single file or folder name
func ValidateName(name string) error {
	switch {
	case name == "":
		return &PathError{Path: name, Message: "name is empty"}
	case name == "." || name == "..":
		return &PathError{Path: name, Message: "name is reserved"}
	case strings.ContainsAny(name, "/\\"):
		return &PathError{Path: name, Message: "name contains a path separator"}
	}
	return nil
}

// ToSMBPath converts a '/'-separated path to SMB's backslash form
func ToSMBPath(p string) string {
	return strings.ReplaceAll(p, "/", "\\")
}

// FromSMBPath converts an SMB backslash path to '/' separators
func FromSMBPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// SplitShare splits a cleaned SMB path into its share name and the path
// inside the share
func SplitShare(p string) (share, rest string) {
	share, rest, _ = strings.Cut(p, "/")
	return share, rest
}

// IsUNCPath checks if a path is a UNC path (\\host\share or //host/share)
func IsUNCPath(p string) bool {
	return strings.HasPrefix(p, "\\\\") || strings.HasPrefix(p, "//")
}

// ParseUNCPath parses a UNC path into host, share and the '/'-separated
// remainder. Returns empty strings if not a UNC path.
func ParseUNCPath(p string) (host, share, relPath string) {
	if !IsUNCPath(p) {
		return "", "", ""
	}

	trimmed := FromSMBPath(p)[2:]
	parts := strings.SplitN(trimmed, "/", 3)

	if len(parts) >= 1 {
		host = parts[0]
	}
	if len(parts) >= 2 {
		share = parts[1]
	}
	if len(parts) >= 3 {
		relPath = strings.Trim(parts[2], "/")
	}

	return host, share, relPath
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// DefaultDataDir returns where the database and key material live
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+AppName)
	}
	return filepath.Join(home, ".local", "share", AppName)
}

// DefaultConfigDir returns the directory of config.yaml
func DefaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(".", "."+AppName)
}

// PathError represents a path validation error
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return "invalid path '" + e.Path + "': " + e.Message
}

// Unwrap lets errors.Is match models.ErrInvalidPath
func (e *PathError) Unwrap() error {
	return models.ErrInvalidPath
}
