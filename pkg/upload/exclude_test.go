package upload

import "testing"

func TestExcluded(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		patterns []string
		want     bool
	}{
		{"no patterns", "a.txt", nil, false},
		{"basename glob", "sub/x.tmp", []string{"*.tmp"}, true},
		{"basename miss", "sub/x.txt", []string{"*.tmp"}, false},
		{"dir pattern itself", ".git", []string{".git/"}, true},
		{"dir pattern child", ".git/HEAD", []string{".git/"}, true},
		{"dir pattern nested", "a/node_modules/x.js", []string{"node_modules/"}, true},
		{"dir pattern prefix only", ".github/ci.yml", []string{".git/"}, false},
		{"path glob", "build/out.bin", []string{"build/*"}, true},
		{"path glob nested", "app/build/out.bin", []string{"build/*"}, false},
		{"double star", "a/b/cache", []string{"**/cache"}, true},
		{"double star component", "a/cache/b.txt", []string{"**/cache"}, true},
		{"windows separators", "bin/tool.exe", []string{"bin\\*.exe"}, true},
		{"empty pattern", "a.txt", []string{""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := excluded(tt.path, tt.patterns); got != tt.want {
				t.Errorf("excluded(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
			}
		})
	}
}
