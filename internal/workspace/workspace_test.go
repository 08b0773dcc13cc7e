package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesCollisionFreeOwnerOnlyDir(t *testing.T) {
	base := t.TempDir()

	ws, err := New(base)
	require.NoError(t, err)
	defer ws.Close()

	info, err := os.Stat(ws.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	assert.Equal(t, base, filepath.Dir(ws.Root()))
}

func TestNewFailsOnMissingBase(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
	var wsErr *Error
	assert.ErrorAs(t, err, &wsErr)
}

func TestCloseRemovesDirectoryUnconditionally(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	require.NoError(t, err)

	nested := filepath.Join(ws.Root(), "child.txt")
	require.NoError(t, os.WriteFile(nested, []byte("data"), 0o400))

	require.NoError(t, ws.Close())
	_, err = os.Stat(ws.Root())
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, ws.Close())
}

func TestResolveLocalRejectsEscapes(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	require.NoError(t, err)
	defer ws.Close()

	cases := []string{
		"../escape.txt",
		"../../etc/passwd",
		"/etc/passwd",
		"a/../../b",
	}
	for _, name := range cases {
		_, err := ws.ResolveLocal(name)
		assert.Errorf(t, err, "expected %q to be rejected", name)
	}
}

func TestResolveLocalAcceptsNestedNames(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base)
	require.NoError(t, err)
	defer ws.Close()

	resolved, err := ws.ResolveLocal("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "a", "b", "c.txt"), resolved)
}
