package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPathSchema(t *testing.T) {
	valid := []string{
		"gateway",
		"gateway.tls.certPath",
		"store.snapshotInterval",
		"recall.retention",
		"translate.deepl.authKey",
		"notify.irc.channels",
		"upload.retentionDays",
	}
	for _, in := range valid {
		_, err := ParseConfigPath(in)
		assert.NoError(t, err, in)
	}

	invalid := map[string]string{
		"":                      "empty",
		".store":                "empty segment",
		"store.":                "empty segment",
		"Gateway.port":          "unknown config key",
		"store.path.x":          "is a value",
		"translate.providers.0": "is a value",
		"geo.url":               "unknown config key",
	}
	for in, msg := range invalid {
		_, err := ParseConfigPath(in)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce, in)
		assert.Contains(t, ce.Message, msg, in)
	}
}

func TestRawPathRoundTrip(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{"port": 8787, "bind": "loopback"},
		"mode":    "scalar",
	}

	SetValueAtPath(root, []string{"gateway", "port"}, 9999)
	SetValueAtPath(root, []string{"recall", "retention"}, "72h")
	SetValueAtPath(root, []string{"mode", "x"}, 1)

	v, ok := GetValueAtPath(root, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, v)
	v, ok = GetValueAtPath(root, []string{"recall", "retention"})
	assert.True(t, ok)
	assert.Equal(t, "72h", v)
	v, ok = GetValueAtPath(root, []string{"mode", "x"})
	assert.True(t, ok, "scalar intermediates are replaced by sections")
	assert.Equal(t, 1, v)

	_, ok = GetValueAtPath(root, []string{"gateway", "port", "deeper"})
	assert.False(t, ok)
	_, ok = GetValueAtPath(root, []string{"missing"})
	assert.False(t, ok)
}

func TestUnsetValueAtPathPrunesEmptySections(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{"port": 8787, "bind": "loopback"},
		"notify":  map[string]any{"irc": map[string]any{"server": "irc.libera.chat"}},
	}

	assert.True(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	v, ok := GetValueAtPath(root, []string{"gateway", "bind"})
	assert.True(t, ok)
	assert.Equal(t, "loopback", v)

	assert.True(t, UnsetValueAtPath(root, []string{"notify", "irc", "server"}))
	assert.NotContains(t, root, "notify")

	assert.False(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"a", "b"}))
	assert.False(t, UnsetValueAtPath(root, nil))
}

// --- ResolvePaths extended tests ---

func TestResolvePaths_AllFields(t *testing.T) {
	t.Setenv("SUPPORTIM_HOME", "")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".supportim")
	assert.Equal(t, base, paths.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(base, "data"), paths.Data)
	assert.Equal(t, filepath.Join(base, "data", "supportim.db"), paths.Database)
	assert.Equal(t, filepath.Join(base, "data", "mem.json"), paths.Snapshot)
	assert.Equal(t, filepath.Join(base, "uploads"), paths.Uploads)
	assert.Equal(t, filepath.Join(base, "logs"), paths.Logs)
}

func TestResolvePaths_CustomHomeAllFields(t *testing.T) {
	t.Setenv("SUPPORTIM_HOME", "/tmp/testim")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/testim", paths.Base)
	assert.Equal(t, "/tmp/testim/config.yaml", paths.Config)
	assert.Equal(t, "/tmp/testim/data/supportim.db", paths.Database)
	assert.Equal(t, "/tmp/testim/uploads", paths.Uploads)
}

func testPaths(dir string) Paths {
	return Paths{
		Base:     dir,
		Data:     filepath.Join(dir, "data"),
		Database: filepath.Join(dir, "data", "supportim.db"),
		Snapshot: filepath.Join(dir, "data", "mem.json"),
		Uploads:  filepath.Join(dir, "uploads"),
		Logs:     filepath.Join(dir, "logs"),
	}
}

func TestEnsureDirs_CreatesAll(t *testing.T) {
	paths := testPaths(t.TempDir())

	require.NoError(t, paths.EnsureDirs())

	for _, dir := range []string{paths.Base, paths.Data, paths.Uploads, paths.Logs} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureDirs_Idempotent(t *testing.T) {
	paths := testPaths(t.TempDir())

	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs()) // second call should succeed
}

func TestApply_FillsEmptyPaths(t *testing.T) {
	paths := testPaths("/srv/im")
	cfg := Defaults()
	cfg.Upload.Dir = "/var/uploads"

	paths.Apply(&cfg)

	assert.Equal(t, "/srv/im/data/supportim.db", cfg.Store.Path)
	assert.Equal(t, "/srv/im/data/mem.json", cfg.Store.SnapshotPath)
	assert.Equal(t, "/var/uploads", cfg.Upload.Dir, "explicit values are kept")
}
