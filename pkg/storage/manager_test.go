package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSave(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(root, "")
	require.NoError(t, err)

	sum, err := manager.Save("105", "105-1.jpg", bytes.NewReader([]byte("photo")))
	require.NoError(t, err)
	assert.Equal(t, "5ae0c1c8a5260bc7b6648f6fbd115c35", sum)

	content, err := os.ReadFile(filepath.Join(root, "live", "105", "105-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("photo"), content)
	assert.True(t, manager.Exists("105"))

	_, err = os.Stat(filepath.Join(root, "live", "105", "105-1.jpg.tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file must not remain")
}

func TestManagerSameContentSameFingerprint(t *testing.T) {
	manager, err := NewManager(t.TempDir(), "")
	require.NoError(t, err)

	a, err := manager.Save("1", "1-1.jpg", bytes.NewReader([]byte("same bytes")))
	require.NoError(t, err)
	b, err := manager.Save("2", "2-1.jpg", bytes.NewReader([]byte("same bytes")))
	require.NoError(t, err)
	c, err := manager.Save("3", "3-1.jpg", bytes.NewReader([]byte("other bytes")))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestManagerLifecycleMoves(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(t.TempDir(), "cold")
	manager, err := NewManager(root, archive)
	require.NoError(t, err)

	_, err = manager.Save("200", "200-1.mp4", bytes.NewReader([]byte("video")))
	require.NoError(t, err)

	require.NoError(t, manager.Detach("200"))
	assert.False(t, manager.Exists("200"))
	assert.Equal(t, filepath.Join(root, "unlinked", "200"), manager.Locate("200"))

	// Detaching twice is harmless
	require.NoError(t, manager.Detach("200"))

	require.NoError(t, manager.Archive("200"))
	assert.Equal(t, filepath.Join(archive, "200"), manager.Locate("200"))
	require.NoError(t, manager.Archive("200"))

	// Remove leaves archived copies alone
	require.NoError(t, manager.Remove("200"))
	assert.Equal(t, filepath.Join(archive, "200"), manager.Locate("200"))
}

func TestManagerRemove(t *testing.T) {
	manager, err := NewManager(t.TempDir(), "")
	require.NoError(t, err)

	_, err = manager.Save("300", "300-1.jpg", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	require.NoError(t, manager.Detach("300"))
	require.NoError(t, manager.Remove("300"))
	assert.Empty(t, manager.Locate("300"))

	// Removing a missing asset is not an error
	require.NoError(t, manager.Remove("300"))
}

func TestManagerRejectsEscapingKeys(t *testing.T) {
	manager, err := NewManager(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"", ".", "../etc", "/abs"} {
		_, err := manager.Save(key, "f.jpg", bytes.NewReader(nil))
		assert.Error(t, err, key)
	}
}
