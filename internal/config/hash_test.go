package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", got)

	_, err = HashFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLock_DryRunHashesWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "include:\n  - plugins.yaml\nservice:\n  name: dry\n")
	writeConfig(t, dir, "plugins.yaml", "plugins_dir: ./plugins\n")

	reports, err := Lock(path, true)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Written)
	assert.Len(t, reports[0].Files, 2)
	for _, f := range reports[0].Files {
		assert.Len(t, f.Hash, 64, f.Name)
	}

	_, err = ReadChecksums(dir)
	assert.ErrorIs(t, err, ErrNoChecksums)
}

func TestLock_PerDirectory(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "plugins.d")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	path := writeConfig(t, root, "config.yaml", "include:\n  - plugins.d/echo.yaml\n")
	writeConfig(t, sub, "echo.yaml", "plugins:\n  echo:\n    autoload: true\n")

	reports, err := Lock(path, false)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, root, reports[0].Dir)
	assert.Equal(t, sub, reports[1].Dir)

	sums, err := ReadChecksums(sub)
	require.NoError(t, err)
	assert.Contains(t, sums.Hashes, "echo.yaml")
	assert.NoError(t, sums.Verify(filepath.Join(sub, "echo.yaml")))
}

func TestChecksums_Verify(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "service:\n  name: a\n")
	_, err := Lock(path, false)
	require.NoError(t, err)
	sums, err := ReadChecksums(dir)
	require.NoError(t, err)

	stray := writeConfig(t, dir, "extra.yaml", "x: 1\n")
	assert.ErrorIs(t, sums.Verify(stray), ErrNotLocked)

	writeConfig(t, dir, "config.yaml", "service:\n  name: b\n")
	assert.ErrorIs(t, sums.Verify(path), ErrChecksumMismatch)
}

func TestReadChecksums_RejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ChecksumsFile, "version: 9\nhashes: {}\n")

	_, err := ReadChecksums(dir)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoChecksums)
	assert.Contains(t, err.Error(), "version 9")
}
