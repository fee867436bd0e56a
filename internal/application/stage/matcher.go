package stage

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// pathMatcher matches slash-separated relative paths against glob patterns.
// "*" stays within one path segment and "**" crosses segments. A leading
// "**/" also matches at the root, so "**/node_modules/**" excludes a
// top-level node_modules too.
type pathMatcher struct {
	globs []glob.Glob
}

func newPathMatcher(patterns []string) (*pathMatcher, error) {
	m := &pathMatcher{}
	for _, p := range patterns {
		variants := []string{p}
		if rest := strings.TrimPrefix(p, "**/"); rest != p {
			variants = append(variants, rest)
		}
		for _, v := range variants {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern '%s': %w", p, err)
			}
			m.globs = append(m.globs, g)
		}
	}
	return m, nil
}

func (m *pathMatcher) empty() bool {
	return len(m.globs) == 0
}

func (m *pathMatcher) match(rel string) bool {
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// matchDir reports whether everything below dir is matched
func (m *pathMatcher) matchDir(dir string) bool {
	return m.match(dir + "/")
}
