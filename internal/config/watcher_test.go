package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o644))

	changed := make(chan string, 4)
	w, err := NewSeedWatcher(path, 20*time.Millisecond, func(p string) { changed <- p }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("alternatives: []\n"), 0o644))

	select {
	case p := <-changed:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, p)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after writing the seed file")
	}
}

func TestSeedWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o644))

	changed := make(chan string, 4)
	w, err := NewSeedWatcher(path, 10*time.Millisecond, func(p string) { changed <- p }, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	select {
	case p := <-changed:
		t.Fatalf("unexpected reload for %s", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewSeedWatcher_NilCallback(t *testing.T) {
	_, err := NewSeedWatcher("seed.yaml", time.Millisecond, nil, nil)
	assert.Error(t, err)
}
