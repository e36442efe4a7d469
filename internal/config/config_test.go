package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.si0")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.si0"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesKnownKeys(t *testing.T) {
	path := writeConfig(t, "SoupSize=120000\nSliceSize=50\nMutBitProp=0.5\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120000, cfg.SoupSize)
	assert.Equal(t, 50, cfg.SliceSize)
	assert.InDelta(t, 0.5, cfg.MutBitProp, 1e-9)
}

func TestLoadIgnoresUnknownKeysAndComments(t *testing.T) {
	path := writeConfig(t, "# a comment\nBogusKey=1\nSoupSize=99 # inline comment\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.SoupSize)
}

func TestLoadCollectsInoculationList(t *testing.T) {
	path := writeConfig(t, "SoupSize=60000\nNumCells=2\n\ncenter\n0080aaa\nrandom\n0080aab\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"center", "0080aaa", "random", "0080aab"}, cfg.Inoculations)
}

func TestLoadSeedAndGenebankPath(t *testing.T) {
	path := writeConfig(t, "seed=42\nGenebankPath=gb1/\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, "gb1/", cfg.GenebankPath)
}
