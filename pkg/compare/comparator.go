// Package compare implements the listing sort policy shared by every backend:
// directories always precede files, then a selectable key and direction.
package compare

import (
	"slices"

	"github.com/sdejongh/filenorris/pkg/models"
)

// Comparator orders two file items. Compare returns a negative number when a
// sorts before b, a positive number when after, and 0 when equal.
type Comparator interface {
	// Compare compares two items
	Compare(a, b models.FileItem) int

	// Name returns the name of the ordering
	Name() string
}

// ForKey returns the bare key comparator, without direction or partition
func ForKey(key models.SortKey) Comparator {
	switch key {
	case models.SortByDate:
		return NewDateComparator()
	case models.SortBySize:
		return NewSizeComparator()
	default:
		return NewNameComparator()
	}
}

// New returns the full policy comparator for cfg
func New(cfg models.SortConfig) Comparator {
	return NewCompositeComparator(ForKey(cfg.Key), cfg.Descending)
}

// Sort orders items in place according to cfg
func Sort(items []models.FileItem, cfg models.SortConfig) {
	c := New(cfg)
	slices.SortStableFunc(items, c.Compare)
}

// Sorted returns a sorted copy of items
func Sorted(items []models.FileItem, cfg models.SortConfig) []models.FileItem {
	out := slices.Clone(items)
	Sort(out, cfg)
	return out
}
