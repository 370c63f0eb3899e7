package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &ProjectConfig{}, cfg)
}

func TestLoad_YML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := `outputDir: ast-out
exclude: "^(test|vendor)"
filter: 'size < 100000 && !(rel_path startsWith "db/")'
workers: 4
manifest: .rubyastgen.db
hook: hooks/sinks.risor
debug: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rubyastgen.yml"), []byte(data), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, &ProjectConfig{
		OutputDir: "ast-out",
		Exclude:   "^(test|vendor)",
		Filter:    `size < 100000 && !(rel_path startsWith "db/")`,
		Workers:   4,
		Manifest:  ".rubyastgen.db",
		Hook:      "hooks/sinks.risor",
		Debug:     true,
	}, cfg)
}

func TestLoad_YAMLExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rubyastgen.yaml"), []byte("workers: 2\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rubyastgen.yml"), []byte("workers: [1, 2\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rubyastgen.yml")
}

func TestLoad_NegativeWorkers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rubyastgen.yml"), []byte("workers: -1\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
