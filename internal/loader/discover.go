package loader

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/wizzardx/davinci/pkg/schema"
)

// DefaultPatterns are the globs used when no pattern is configured.
var DefaultPatterns = []string{"**/*.davinci.yaml", "**/*.davinci.yml", "**/*.davinci.json"}

// Discover expands doublestar patterns relative to root and returns the
// matching files as a sorted, deduplicated list of paths joined with root.
func Discover(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	fsys := os.DirFS(root)

	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid glob pattern %q", pattern).
				WithDetails(map[string]any{"pattern": pattern})
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "glob %q: %s", pattern, err.Error()).WithCause(err)
		}
		for _, m := range matches {
			p := filepath.Join(root, filepath.FromSlash(m))
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Matches reports whether a root-relative path matches any of the patterns.
func Matches(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
