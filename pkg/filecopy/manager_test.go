package filecopy

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCopyReusesUnchangedSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "message_0.db")
	writeFile(t, src, "v1")

	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	p1, err := m.Copy(src)
	require.NoError(t, err)
	p2, err := m.Copy(src)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, ".db", filepath.Ext(p1))

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.Len(t, m.Entries(), 1)
}

func TestCopyConcurrentSameSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "message_0.db")
	writeFile(t, src, "v1")

	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)
	defer m.Close()

	const n = 16
	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], errs[i] = m.Copy(src)
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	copies, err := filepath.Glob(filepath.Join(dir, "*.db"))
	require.NoError(t, err)
	assert.Len(t, copies, 1)
}

func TestCopyNewVersion(t *testing.T) {
	src := filepath.Join(t.TempDir(), "contact.db")
	writeFile(t, src, "v1")

	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	p1, err := m.Copy(src)
	require.NoError(t, err)

	writeFile(t, src, "version 2")
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(src, later, later))

	p2, err := m.Copy(src)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	data, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, "version 2", string(data))
}

func TestCopySidecars(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "message_0.db")
	writeFile(t, src, "main")
	writeFile(t, src+"-wal", "wal")

	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	p, err := m.Copy(src)
	require.NoError(t, err)
	data, err := os.ReadFile(p + "-wal")
	require.NoError(t, err)
	assert.Equal(t, "wal", string(data))
	assert.NoFileExists(t, p+"-shm")

	m.Release(p)
	assert.NoFileExists(t, p)
	assert.NoFileExists(t, p+"-wal")
	assert.Empty(t, m.Entries())
}

func TestCopyErrors(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Copy("")
	assert.Error(t, err)
	_, err = m.Copy(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
	_, err = m.Copy(t.TempDir())
	assert.Error(t, err)
}

func TestCloseRemovesOwnedDir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.db")
	writeFile(t, src, "a")

	m, err := NewManager("")
	require.NoError(t, err)
	_, err = m.Copy(src)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.NoDirExists(t, m.Dir())
}
