package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	opts := Default()
	assert.Equal(t, 10, opts.Priority.MaxDepth)
	assert.False(t, opts.Priority.IncludeComplexity)
	assert.Equal(t, 50, opts.Page.DefaultLimit)
	assert.Equal(t, 3, opts.IDGenerator.MinLen)
	assert.Equal(t, 8, opts.IDGenerator.MaxLen)
	assert.True(t, opts.Cache.AutoTransitionStatus)
	require.NotNil(t, opts.Gate.ClockSource)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Priority.MaxDepth, opts.Priority.MaxDepth)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stoneforge.toml")
	content := "[priority]\nmax_depth = 4\n\n[page]\ndefault_limit = 25\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, opts.Priority.MaxDepth)
	assert.Equal(t, 25, opts.Page.DefaultLimit)
	assert.Equal(t, 8, opts.IDGenerator.MaxLen) // untouched field keeps its default
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stoneforge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[priority]\nmax_depth = 4\n"), 0o600))

	t.Setenv("STONEFORGE_PRIORITY_MAX_DEPTH", "7")
	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, opts.Priority.MaxDepth)
}

func TestWriteTemplateRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stoneforge.toml")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteTemplate(f, Default()))
	require.NoError(t, f.Close())

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Page.DefaultLimit, opts.Page.DefaultLimit)
}

func TestNewWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stoneforge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[priority]\nmax_depth = 4\n"), 0o600))

	changed := make(chan Options, 1)
	w, err := NewWatcher(path, func(o Options) { changed <- o })
	require.NoError(t, err)
	assert.Equal(t, 4, w.Current().Priority.MaxDepth)

	require.NoError(t, os.WriteFile(path, []byte("[priority]\nmax_depth = 9\n"), 0o600))

	select {
	case o := <-changed:
		assert.Equal(t, 9, o.Priority.MaxDepth)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
