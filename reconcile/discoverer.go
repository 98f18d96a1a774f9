// ABOUTME: Discoverer is the external collaborator that walks the project's source tree and yields agent-shaped nodes.
// ABOUTME: Tree-sitter parsing and language-specific extraction live outside this runtime's scope.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bullish-Design/remora/pathutil"
)

// DiscoveredNode is one source entity (function, class, module, or
// similar) found by a Discoverer, stable-identified by NodeID — a
// content-addressed hash of file path plus symbol path, computed by the
// Discoverer implementation.
type DiscoveredNode struct {
	NodeID    string
	NodeType  string
	Name      string
	FullName  string
	FilePath  string
	ParentID  string
	StartLine int
	EndLine   int
	ModTime   int64 // unix seconds, mtime of FilePath at discovery time
}

// Discoverer walks discoveryPaths under projectPath and returns every
// node it finds. Implementations may use tree-sitter or any other parser;
// this runtime only depends on the interface.
type Discoverer interface {
	Discover(projectPath string, discoveryPaths []string, languages []string) ([]DiscoveredNode, error)
}

// StaticDiscoverer is a Discoverer backed by a fixed, in-memory node list,
// useful for tests and for running reconciliation against a
// pre-computed node set.
type StaticDiscoverer struct {
	Nodes []DiscoveredNode
}

// Discover implements Discoverer by returning the fixed node list
// unconditionally.
func (d StaticDiscoverer) Discover(projectPath string, discoveryPaths []string, languages []string) ([]DiscoveredNode, error) {
	return d.Nodes, nil
}

// FileDiscoverer is a Discoverer that walks discoveryPaths on the real
// filesystem and yields one file-level DiscoveredNode per matching file,
// without any symbol-level (tree-sitter) extraction. It exists so the
// daemon has a working Discoverer out of the box; a richer,
// language-aware Discoverer can replace it without touching the
// Reconciler.
type FileDiscoverer struct {
	// IgnorePatterns are exact path-segment names to skip during the
	// walk (directories and files alike), e.g. pathutil.DefaultIgnorePatterns.
	IgnorePatterns []string
	// IgnoreDotfiles skips any path segment starting with "." beyond
	// the project root.
	IgnoreDotfiles bool
	// Extensions restricts matched files to these suffixes (with the
	// leading dot, e.g. ".go", ".py"); a nil/empty slice matches every
	// file.
	Extensions []string
}

// Discover walks projectPath/discoveryPaths (defaulting to projectPath
// itself when discoveryPaths is empty), skipping ignored directories and
// non-matching files, and returns one DiscoveredNode per surviving file.
// languages is accepted for interface compatibility but unused: a
// FileDiscoverer has no language-aware extraction, only the Extensions
// filter.
func (d FileDiscoverer) Discover(projectPath string, discoveryPaths []string, languages []string) ([]DiscoveredNode, error) {
	roots := discoveryPaths
	if len(roots) == 0 {
		roots = []string{"."}
	}

	var nodes []DiscoveredNode
	seen := make(map[string]bool)

	for _, root := range roots {
		startDir := filepath.Join(projectPath, filepath.FromSlash(root))
		info, statErr := os.Stat(startDir)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}
			return nil, statErr
		}
		if !info.IsDir() {
			node, ok, err := d.nodeForFile(projectPath, startDir, info)
			if err != nil {
				return nil, err
			}
			if ok && !seen[node.FilePath] {
				seen[node.FilePath] = true
				nodes = append(nodes, node)
			}
			continue
		}

		walkErr := filepath.WalkDir(startDir, func(fpath string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil // best-effort: unreadable entries are skipped, not fatal
			}
			rel, relErr := filepath.Rel(projectPath, fpath)
			if relErr != nil {
				rel = fpath
			}
			if entry.IsDir() {
				if fpath != startDir && pathutil.ShouldIgnore(rel, d.IgnorePatterns, d.IgnoreDotfiles) {
					return filepath.SkipDir
				}
				return nil
			}
			if pathutil.ShouldIgnore(rel, d.IgnorePatterns, d.IgnoreDotfiles) {
				return nil
			}

			fi, infoErr := entry.Info()
			if infoErr != nil {
				return nil
			}
			node, ok, nodeErr := d.nodeForFile(projectPath, fpath, fi)
			if nodeErr != nil {
				return nil
			}
			if ok && !seen[node.FilePath] {
				seen[node.FilePath] = true
				nodes = append(nodes, node)
			}
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	return nodes, nil
}

func (d FileDiscoverer) nodeForFile(projectPath, absPath string, info fs.FileInfo) (DiscoveredNode, bool, error) {
	if len(d.Extensions) > 0 {
		match := false
		for _, ext := range d.Extensions {
			if strings.HasSuffix(absPath, ext) {
				match = true
				break
			}
		}
		if !match {
			return DiscoveredNode{}, false, nil
		}
	}

	rel, err := filepath.Rel(projectPath, absPath)
	if err != nil {
		rel = absPath
	}
	rel = filepath.ToSlash(rel)

	return DiscoveredNode{
		NodeID:    fileNodeID(rel),
		NodeType:  "file",
		Name:      filepath.Base(rel),
		FullName:  rel,
		FilePath:  rel,
		StartLine: 1,
		EndLine:   0,
		ModTime:   info.ModTime().Unix(),
	}, true, nil
}

// fileNodeID derives a stable, content-addressed node id from a
// project-relative file path: the same file always yields the same id
// across runs, which is what the Reconciler's new/deleted/common diff
// depends on.
func fileNodeID(relPath string) string {
	sum := sha256.Sum256([]byte("file:" + relPath))
	return hex.EncodeToString(sum[:])
}
