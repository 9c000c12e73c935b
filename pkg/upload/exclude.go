package upload

import (
	"path"
	"strings"
)

// excluded reports whether rel, a '/'-separated path relative to the
// uploaded folder, matches one of patterns:
//   - *.tmp matches base names at any depth
//   - .git/ matches a directory and everything below it
//   - build/* matches against the full relative path
//   - **/cache matches a component at any depth
func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)

	for _, pattern := range patterns {
		pattern = strings.ReplaceAll(strings.TrimSpace(pattern), "\\", "/")
		if pattern == "" {
			continue
		}

		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if rel == dir || strings.HasPrefix(rel, dir+"/") || strings.Contains("/"+rel+"/", "/"+dir+"/") {
				return true
			}
			continue
		}

		if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
			if matchGlob(base, suffix) || matchAnyComponent(rel, suffix) ||
				rel == suffix || strings.HasSuffix(rel, "/"+suffix) {
				return true
			}
			continue
		}

		if strings.Contains(pattern, "/") {
			if matchGlob(rel, pattern) || strings.HasSuffix(rel, "/"+pattern) {
				return true
			}
			continue
		}

		if matchGlob(base, pattern) {
			return true
		}
	}

	return false
}

func matchGlob(name, pattern string) bool {
	matched, _ := path.Match(pattern, name)
	return matched
}

// matchAnyComponent checks if any component of p matches pattern
func matchAnyComponent(p, pattern string) bool {
	for _, part := range strings.Split(p, "/") {
		if matchGlob(part, pattern) {
			return true
		}
	}
	return false
}
