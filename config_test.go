package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauipipe/visionresizer/diagnose"
	"github.com/mauipipe/visionresizer/sizer"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	v, err := newViper("")
	require.NoError(t, err)
	config, err := decodeConfig(v)
	require.NoError(t, err)

	assert.Equal(t, uint(8080), config.Port)
	assert.Equal(t, 5*time.Second, config.RequestTimeout)
	assert.Equal(t, 200*time.Millisecond, config.WarmupInterval)
	assert.True(t, config.CacheThumbnails)
	assert.Equal(t, sizer.Size{Width: 8192, Height: 8192}, config.SizeLimits)

	b, ok := config.Budget("")
	require.True(t, ok)
	assert.Equal(t, sizer.DefaultBudget(), b)

	b, ok = config.Budget("Qwen2VL")
	require.True(t, ok)
	assert.Equal(t, 28, b.Factor)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
port: 9000
imagehost: https://cdn.example.com/
hostwhitelist:
  - cdn.example.com
placeholders:
  - name: web
    size:
      width: 320
      height: 240
budgets:
  thumb:
    factor: 16
    min_pixels: 256
    max_pixels: 65536
warmuppaths:
  - image/a.jpg
warmupconcurrency: 0
checks:
  - name: python
    kind: executable
    target: python3
    optional: true
`)

	v, err := newViper(path)
	require.NoError(t, err)
	config, err := decodeConfig(v)
	require.NoError(t, err)

	assert.Equal(t, uint(9000), config.Port)
	assert.Equal(t, "https://cdn.example.com/", config.ImageHost)
	assert.Equal(t, []string{"cdn.example.com"}, config.HostWhiteList)
	assert.Equal(t, []Placeholder{{Name: "web", Size: sizer.Size{Width: 320, Height: 240}}}, config.Placeholders)
	assert.Equal(t, 1, config.WarmupConcurrency)

	b, ok := config.Budget("thumb")
	require.True(t, ok)
	assert.Equal(t, sizer.Budget{Factor: 16, MinPixels: 256, MaxPixels: 65536}, b)

	_, ok = config.Budget("default")
	assert.True(t, ok)

	assert.Equal(t, []diagnose.Check{{Name: "python", Kind: diagnose.KindExecutable, Target: "python3", Optional: true}},
		config.EnvironmentChecks())
}

func TestLoadConfig_InvalidBudget(t *testing.T) {
	path := writeConfig(t, `
budgets:
  bad:
    factor: 32
    min_pixels: 1000
    max_pixels: 10
`)

	v, err := newViper(path)
	require.NoError(t, err)
	_, err = decodeConfig(v)
	assert.ErrorIs(t, err, sizer.ErrInvalidBudget)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := newViper(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_CachePathFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	t.Setenv("RESIZER_CACHE_PATH", dir)

	v, err := newViper("")
	require.NoError(t, err)
	config, err := decodeConfig(v)
	require.NoError(t, err)

	assert.Equal(t, dir, config.CachePath)
	assert.Equal(t, diagnose.DefaultChecks(dir), config.EnvironmentChecks())
}
