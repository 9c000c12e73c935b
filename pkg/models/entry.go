package models

import (
	"io"
	"time"
)

// FileItem is a single entry returned by a backend listing
type FileItem struct {
	// Name is the last path element
	Name string

	// Path is backend-relative, '/'-separated and unique within one backend
	Path string

	// IsDir indicates a directory (or a share, for SMB top level)
	IsDir bool

	// Size in bytes, always 0 for directories
	Size int64

	// LastModified is the modification time in epoch milliseconds
	LastModified int64
}

// NewFileItem builds a FileItem, forcing directory sizes to 0
func NewFileItem(name, path string, isDir bool, size int64, modTime time.Time) FileItem {
	if isDir {
		size = 0
	}
	var lastModified int64
	if !modTime.IsZero() {
		lastModified = modTime.UnixMilli()
	}
	return FileItem{
		Name:         name,
		Path:         path,
		IsDir:        isDir,
		Size:         size,
		LastModified: lastModified,
	}
}

// ModTime returns LastModified as a time.Time
func (f FileItem) ModTime() time.Time {
	return time.UnixMilli(f.LastModified)
}

// FileObjectID is either the backend root or an opaque backend item handle
type FileObjectID struct {
	id string
}

// RootObject returns the root handle
func RootObject() FileObjectID {
	return FileObjectID{}
}

// ItemObject returns a handle for a backend item id
func ItemObject(id string) FileObjectID {
	return FileObjectID{id: id}
}

// IsRoot reports whether the handle designates the root
func (o FileObjectID) IsRoot() bool {
	return o.id == ""
}

// ID returns the item id, empty for the root
func (o FileObjectID) ID() string {
	return o.id
}

func (o FileObjectID) String() string {
	if o.IsRoot() {
		return "root"
	}
	return "item:" + o.id
}

// UploadEntry is one file of a folder upload
type UploadEntry struct {
	// RelativePath is '/'-separated and relative to the uploaded folder
	RelativePath string

	// Size in bytes, used for progress only (-1 when unknown)
	Size int64

	// Open returns the content stream; the caller closes it
	Open func() (io.ReadCloser, error)
}
