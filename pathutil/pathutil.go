// ABOUTME: Project-relative path resolution and the default ignore-pattern set used during discovery.
// ABOUTME: Grounded on the runtime's prose description of PathResolver; the original Python source file was not retrievable.
package pathutil

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// DefaultIgnorePatterns are directory/file names excluded from discovery
// and workspace scanning unless a config overrides them.
var DefaultIgnorePatterns = []string{
	".agentfs", ".git", ".jj", ".mypy_cache", ".pytest_cache",
	".remora", ".tox", ".venv", "__pycache__", "node_modules", "venv",
}

// Resolver converts between absolute filesystem paths and the
// project-relative, POSIX-style paths used in subscription patterns and
// event payloads.
type Resolver struct {
	projectRoot string
}

// NewResolver returns a Resolver rooted at projectRoot, which must be an
// absolute, cleaned path.
func NewResolver(projectRoot string) *Resolver {
	return &Resolver{projectRoot: filepath.Clean(projectRoot)}
}

// ToProjectRelative converts an absolute path under the project root to a
// forward-slash relative path. Returns an error if absPath escapes the
// project root.
func (r *Resolver) ToProjectRelative(absPath string) (string, error) {
	rel, err := filepath.Rel(r.projectRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("resolve relative path: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside project root %q", absPath, r.projectRoot)
	}
	return filepath.ToSlash(rel), nil
}

// ToAbsolute converts a project-relative path back to an absolute path
// under the project root.
func (r *Resolver) ToAbsolute(relPath string) string {
	return filepath.Join(r.projectRoot, filepath.FromSlash(relPath))
}

// IsWithinProject reports whether absPath is contained within the
// project root.
func (r *Resolver) IsWithinProject(absPath string) bool {
	_, err := r.ToProjectRelative(absPath)
	return err == nil
}

// Normalize returns p with path separators normalized to forward slashes
// and cleaned of "." / ".." segments where possible, matching the POSIX
// path form stored in events and subscription patterns.
func Normalize(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// ShouldIgnore reports whether any path segment of p matches one of the
// given ignore patterns (exact segment match, not a glob), or, when
// ignoreDotfiles is set, starts with a "." (excluding the "." and ".."
// segments produced by Clean, which are not dotfiles).
func ShouldIgnore(p string, patterns []string, ignoreDotfiles bool) bool {
	segments := strings.Split(Normalize(p), "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		if ignoreDotfiles && strings.HasPrefix(seg, ".") {
			return true
		}
		for _, pat := range patterns {
			if seg == pat {
				return true
			}
		}
	}
	return false
}
