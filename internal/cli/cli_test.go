package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/gateway"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SUPPORTIM_HOME", t.TempDir())
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--log-level", "silent"))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("TRUE"))
	assert.Equal(t, false, parseValue("false"))
	assert.Equal(t, 8787, parseValue("8787"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, "90s", parseValue("90s"))
	assert.Equal(t, "8787abc", parseValue("8787abc"))
	assert.Equal(t, "production", parseValue("production"))
}

func TestPrintValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printValue(&buf, "dev"))
	assert.Equal(t, "dev\n", buf.String())

	buf.Reset()
	require.NoError(t, printValue(&buf, map[string]any{"port": 8787}))
	assert.Equal(t, "port: 8787\n", buf.String())
}

func TestConfigSetGetUnset(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "config", "set", "gateway.port", "9000", "--config", cfgPath)
	require.NoError(t, err)
	_, err = run(t, "config", "set", "recall.retention", "72h", "--config", cfgPath)
	require.NoError(t, err)

	out, err := run(t, "config", "get", "gateway.port", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "9000\n", out)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, "72h0m0s", cfg.Recall.Retention.String())

	_, err = run(t, "config", "unset", "gateway.port", "--config", cfgPath)
	require.NoError(t, err)
	_, err = run(t, "config", "get", "gateway.port", "--config", cfgPath)
	assert.Error(t, err)

	out, err = run(t, "config", "path", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfgPath+"\n", out)
}

func TestConfigValidate(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("gateway:\n  port: 70000\n"), 0o600))

	out, err := run(t, "config", "validate", "--config", cfgPath)
	assert.Error(t, err)
	assert.Contains(t, out, "gateway.port")

	require.NoError(t, os.WriteFile(cfgPath, []byte("gateway:\n  port: 9001\n"), 0o600))
	out, err = run(t, "config", "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "config OK")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "supportim"`)
}

func TestDefaultServerURL(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, "http://127.0.0.1:8787", defaultServerURL(cfg))

	cfg.Gateway.TLS.Enabled = true
	cfg.Gateway.Bind = "custom"
	cfg.Gateway.CustomBindHost = "chat.internal"
	assert.Equal(t, "https://chat.internal:8787", defaultServerURL(cfg))
}

func startServer(t *testing.T, secret string) string {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.SharedSecret = secret
	cfg.Upload.Dir = t.TempDir()
	log := logging.New(nil, "silent")
	st := store.NewMemory("", 0, log)
	ts := httptest.NewServer(gateway.New(cfg, st, log).Handler())
	t.Cleanup(func() {
		ts.Close()
		st.Close()
	})
	return ts.URL
}

func TestAdminCommands(t *testing.T) {
	url := startServer(t, "topsecret")
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	admin := func(args ...string) (string, error) {
		return run(t, append([]string{"admin"}, append(args, "--server", url, "--secret", "topsecret", "--config", cfgPath)...)...)
	}

	out, err := admin("acl", "add", "+111")
	require.NoError(t, err)
	assert.Contains(t, out, "Added +111")

	out, err = admin("acl", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "+111")

	_, err = admin("acl", "remove", "+111")
	require.NoError(t, err)
	out, err = admin("acl", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "+111")

	out, err = admin("tokens", "create", "frank")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Len(t, lines[1], 48)

	out, err = admin("tokens", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "frank")
	assert.NotContains(t, out, lines[1])

	_, err = admin("tokens", "revoke", "1")
	require.NoError(t, err)
	_, err = admin("tokens", "revoke", "1")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestAdminWrongSecret(t *testing.T) {
	url := startServer(t, "topsecret")
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	_, err := run(t, "admin", "acl", "list", "--server", url, "--secret", "nope", "--config", cfgPath)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unauthorized", apiErr.Code)

	_, err = run(t, "admin", "acl", "list", "--server", url, "--config", cfgPath)
	assert.ErrorContains(t, err, "shared secret is required")
}
