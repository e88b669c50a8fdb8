package breakpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTree creates root/pkg/sub/mod.go with a marker in pkg/sub and pkg.
func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	sub := filepath.Join(root, "proj", "pkg", "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "mod.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "PACKAGE"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proj", "pkg", "PACKAGE"), nil, 0o644))
	return filepath.Join(sub, "mod.go")
}

func TestPathMatcher_WalksPackageDirs(t *testing.T) {
	local := makeTree(t)
	m := NewPathMatcher("PACKAGE")

	assert.True(t, m.Match(`D:\Other\Root\PKG\Sub\MOD.go`, local))
	assert.True(t, m.Match("/remote/pkg/sub/mod.go", local))
	assert.False(t, m.Match("/remote/pkg/other/mod.go", local))
	assert.False(t, m.Match("/remote/lib/sub/mod.go", local))
	assert.False(t, m.Match("sub/mod.go", local), "controller path shorter than the package chain")
	assert.False(t, m.Match("/remote/pkg/sub/main.go", local))
}

func TestPathMatcher_NoMarkersComparesFileName(t *testing.T) {
	m := NewPathMatcher()
	assert.True(t, m.Match("/a/b/main.go", "/x/y/MAIN.go"))
	assert.False(t, m.Match("/a/b/main.go", "/x/y/util.go"))
}

func TestPathMatcher_MemoizesMatches(t *testing.T) {
	calls := 0
	m := NewPathMatcher("PACKAGE")
	m.exists = func(string) bool {
		calls++
		return false
	}

	assert.True(t, m.Match("/r/main.go", "/l/main.go"))
	first := calls
	assert.True(t, m.Match("/r/main.go", "/l/main.go"))
	assert.Equal(t, first, calls)
}

func TestMappedSet(t *testing.T) {
	s := NewMappedSet()
	s.Add(4, "/templates/Index.html", 12)

	id, ok := s.Lookup("/templates/index.html", 12)
	assert.True(t, ok)
	assert.Equal(t, int32(4), id)

	assert.False(t, s.Remove(5, "/templates/index.html", 12))
	assert.True(t, s.Remove(4, "/templates/index.html", 12))
	assert.Equal(t, 0, s.Len())
}
