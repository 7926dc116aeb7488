package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	for _, name := range []string{"b.json", "a.json", "nested/c.json", "skip.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("{}"), 0o600))
	}

	files, err := FindFilesByExtension(root, ".json")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a.json"),
		filepath.Join(root, "b.json"),
		filepath.Join(root, "nested", "c.json"),
	}, files)
}

func TestFindFilesByExtension_MissingRoot(t *testing.T) {
	t.Parallel()

	files, err := FindFilesByExtension(filepath.Join(t.TempDir(), "absent"), ".json")
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestFindFilesByExtension_EmptyExtension(t *testing.T) {
	t.Parallel()

	_, err := FindFilesByExtension(t.TempDir(), "")
	require.ErrorIs(t, err, ErrEmptyExtension)
}
