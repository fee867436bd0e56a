package stage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cleanRelPath normalizes a model-proposed path to a slash-separated path
// relative to the project root. Absolute paths and paths escaping the root
// are rejected.
func cleanRelPath(p string) (string, error) {
	p = norm.NFC.String(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	p = filepath.ToSlash(p)
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("path %q must be relative to the project root", p)
	}
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q escapes the project root", p)
	}
	return p, nil
}

// resolve joins a cleaned relative path onto the project root
func resolve(projectPath, rel string) string {
	return filepath.Join(projectPath, filepath.FromSlash(rel))
}
