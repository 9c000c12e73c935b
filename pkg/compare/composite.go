package compare

import (
	"github.com/sdejongh/filenorris/pkg/models"
)

// CompositeComparator applies the two-stage policy:
// Stage 1: directories before files, never reversed
// Stage 2: the key comparator, reversed when descending
type CompositeComparator struct {
	key        Comparator
	descending bool
}

// NewCompositeComparator wraps key with the directory partition
func NewCompositeComparator(key Comparator, descending bool) *CompositeComparator {
	return &CompositeComparator{key: key, descending: descending}
}

// Compare performs the partition then the keyed comparison
func (c *CompositeComparator) Compare(a, b models.FileItem) int {
	if a.IsDir != b.IsDir {
		if a.IsDir {
			return -1
		}
		return 1
	}

	r := c.key.Compare(a, b)
	if c.descending {
		return -r
	}
	return r
}

// Name returns the comparator name
func (c *CompositeComparator) Name() string {
	if c.descending {
		return c.key.Name() + ":desc"
	}
	return c.key.Name() + ":asc"
}
