package breakpoint

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type pathPair struct {
	controller string
	local      string
}

// PathMatcher decides whether a controller-side path names the same source
// as a local path when the two file systems disagree on layout.
//
// Components are compared from the right. The file names must match; after
// that the walk continues inward only while the local directory contains a
// package marker file, and every component visited must match. The walk ends
// in a match at the first directory without a marker.
type PathMatcher struct {
	markers []string
	exists  func(path string) bool

	mu   sync.Mutex
	memo map[pathPair]bool
}

// NewPathMatcher creates a matcher using the given package marker file names.
func NewPathMatcher(markers ...string) *PathMatcher {
	return &PathMatcher{
		markers: markers,
		exists:  fileExists,
		memo:    make(map[pathPair]bool),
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Match reports whether controllerPath and localPath name the same source.
// Positive results are memoized.
func (m *PathMatcher) Match(controllerPath, localPath string) bool {
	key := pathPair{controller: foldPath(controllerPath), local: foldPath(localPath)}

	m.mu.Lock()
	cached := m.memo[key]
	m.mu.Unlock()
	if cached {
		return true
	}

	if !m.walk(key.controller, localPath) {
		return false
	}

	m.mu.Lock()
	m.memo[key] = true
	m.mu.Unlock()
	return true
}

func (m *PathMatcher) walk(controller, localPath string) bool {
	remote := strings.Split(controller, "/")
	local := filepath.Clean(localPath)

	name := remote[len(remote)-1]
	remote = remote[:len(remote)-1]
	if !strings.EqualFold(name, filepath.Base(local)) {
		return false
	}

	dir := filepath.Dir(local)
	for m.isPackage(dir) {
		if len(remote) == 0 {
			return false
		}
		name, remote = remote[len(remote)-1], remote[:len(remote)-1]
		if !strings.EqualFold(name, filepath.Base(dir)) {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return true
}

func (m *PathMatcher) isPackage(dir string) bool {
	for _, marker := range m.markers {
		if m.exists(filepath.Join(dir, marker)) {
			return true
		}
	}
	return false
}

// foldPath normalizes separators and case for comparison.
func foldPath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}
