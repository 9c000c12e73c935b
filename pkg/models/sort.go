package models

import "strings"

// SortKey selects the secondary comparator applied after the directory partition
type SortKey string

const (
	SortByName SortKey = "name"
	SortByDate SortKey = "date"
	SortBySize SortKey = "size"
)

// SortConfig is a key plus direction
type SortConfig struct {
	Key        SortKey `yaml:"key"`
	Descending bool    `yaml:"descending"`
}

// DefaultSortConfig sorts by name, ascending
func DefaultSortConfig() SortConfig {
	return SortConfig{Key: SortByName}
}

// String renders the config as "key:asc" or "key:desc"
func (c SortConfig) String() string {
	if c.Descending {
		return string(c.Key) + ":desc"
	}
	return string(c.Key) + ":asc"
}

// Validate checks the key is known
func (c SortConfig) Validate() error {
	switch c.Key {
	case SortByName, SortByDate, SortBySize:
		return nil
	}
	return &ValidationError{Field: "sort.key", Message: "must be 'name', 'date', or 'size'"}
}

// ParseSortConfig parses "key", "key:asc" or "key:desc"
func ParseSortConfig(s string) (SortConfig, error) {
	key, dir, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	if key == "modified" {
		key = string(SortByDate)
	}
	cfg := SortConfig{Key: SortKey(key)}
	switch dir {
	case "", "asc":
	case "desc":
		cfg.Descending = true
	default:
		return SortConfig{}, &ValidationError{Field: "sort.direction", Message: "must be 'asc' or 'desc'"}
	}
	if err := cfg.Validate(); err != nil {
		return SortConfig{}, err
	}
	return cfg, nil
}
