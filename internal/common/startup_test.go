package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
)

type testConfig struct {
	Name     string
	Interval time.Duration
	MaxBytes resource.Quantity
	Nested   struct {
		Workers int
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `
name: default
interval: 500ms
maxBytes: 8Mi
nested:
  workers: 0
`)
	override := filepath.Join(t.TempDir(), "override.yaml")
	writeFile(t, override, `
name: overridden
`)
	t.Setenv("EVENTHOUSE_NESTED_WORKERS", "12")

	var cfg testConfig
	require.NoError(t, LoadConfig(&cfg, dir, []string{override}))

	assert.Equal(t, "overridden", cfg.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
	assert.Equal(t, int64(8*1024*1024), cfg.MaxBytes.Value())
	assert.Equal(t, 12, cfg.Nested.Workers)
}

func TestLoadConfig_MissingDefault(t *testing.T) {
	var cfg testConfig
	assert.Error(t, LoadConfig(&cfg, t.TempDir(), nil))
}
