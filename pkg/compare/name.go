package compare

import (
	"strings"

	"github.com/sdejongh/filenorris/pkg/models"
)

// NameComparator orders items by case-insensitive name
type NameComparator struct{}

// NewNameComparator creates a new name comparator
func NewNameComparator() *NameComparator {
	return &NameComparator{}
}

// Compare compares lowercased names, falling back to the exact name and path
// so that equal-folding names still get a stable order
func (c *NameComparator) Compare(a, b models.FileItem) int {
	if r := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); r != 0 {
		return r
	}
	if r := strings.Compare(a.Name, b.Name); r != 0 {
		return r
	}
	return strings.Compare(a.Path, b.Path)
}

// Name returns the comparator name
func (c *NameComparator) Name() string {
	return string(models.SortByName)
}
