package compare

import (
	"cmp"

	"github.com/sdejongh/filenorris/pkg/models"
)

// DateComparator orders items by last-modified time
type DateComparator struct {
	byName *NameComparator
}

// NewDateComparator creates a new date comparator
func NewDateComparator() *DateComparator {
	return &DateComparator{byName: NewNameComparator()}
}

// Compare compares modification times, ties broken by name
func (c *DateComparator) Compare(a, b models.FileItem) int {
	if r := cmp.Compare(a.LastModified, b.LastModified); r != 0 {
		return r
	}
	return c.byName.Compare(a, b)
}

// Name returns the comparator name
func (c *DateComparator) Name() string {
	return string(models.SortByDate)
}

// SizeComparator orders items by size in bytes
type SizeComparator struct {
	byName *NameComparator
}

// NewSizeComparator creates a new size comparator
func NewSizeComparator() *SizeComparator {
	return &SizeComparator{byName: NewNameComparator()}
}

// Compare compares sizes, ties broken by name
func (c *SizeComparator) Compare(a, b models.FileItem) int {
	if r := cmp.Compare(a.Size, b.Size); r != 0 {
		return r
	}
	return c.byName.Compare(a, b)
}

// Name returns the comparator name
func (c *SizeComparator) Name() string {
	return string(models.SortBySize)
}
