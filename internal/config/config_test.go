package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnv points Load at an env file that does not exist.
func noEnv(t *testing.T) Options {
	t.Helper()
	return Options{EnvFiles: []string{filepath.Join(t.TempDir(), "missing.env")}}
}

func TestParseVars(t *testing.T) {
	got, err := ParseVars([]string{"X-Experience-API-Version=1.0.3", "limit=500", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"X-Experience-API-Version": "1.0.3",
		"limit":                    "500",
		"empty":                    "",
	}, got)

	for _, bad := range []string{"novalue", "=x", "a=b=c"} {
		_, err := ParseVars([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseAuth(t *testing.T) {
	user, password, err := ParseAuth("testsuite:password")
	require.NoError(t, err)
	assert.Equal(t, "testsuite", user)
	assert.Equal(t, "password", password)

	for _, bad := range []string{"nocolon", "a:b:c", ":pw", "user:"} {
		_, _, err := ParseAuth(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(noEnv(t))
	require.NoError(t, err)

	assert.Equal(t, "testsuite", cfg.LRS.User)
	assert.Equal(t, "password", cfg.LRS.Password)
	assert.Equal(t, map[string]string{"X-Experience-API-Version": "1.0.3"}, cfg.LRS.Headers)
	assert.Empty(t, cfg.LRS.Params)
	assert.Equal(t, 60*time.Second, cfg.LRS.Timeout)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.Equal(t, "logSP31", cfg.Output.Prefix)
	assert.Empty(t, cfg.Store.Path)

	err = cfg.ValidateLRS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lrs.url")
	assert.Contains(t, err.Error(), "lrs.port")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("LRSWEEK_LRS_URL", "lrs.example")
	t.Setenv("LRSWEEK_LRS_PORT", "8080")
	t.Setenv("LRSWEEK_LRS_AUTH", "alice:secret")
	t.Setenv("LRSWEEK_OUTPUT_PREFIX", "logSP32")

	cfg, err := Load(noEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "lrs.example", cfg.LRS.URL)
	assert.Equal(t, 8080, cfg.LRS.Port)
	assert.Equal(t, "alice", cfg.LRS.User)
	assert.Equal(t, "logSP32", cfg.Output.Prefix)
	assert.NoError(t, cfg.ValidateLRS())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LRSWEEK_STORE_PATH=/tmp/cache.db\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LRSWEEK_STORE_PATH") })

	cfg, err := Load(Options{EnvFiles: []string{path}})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cache.db", cfg.Store.Path)
}

func TestLoad_MalformedEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.env")
	require.NoError(t, os.WriteFile(path, []byte("LRSWEEK_STORE_PATH=\"/tmp/cache.db\n"), 0o644))

	_, err := Load(Options{EnvFiles: []string{path}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.env")
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load(noEnv(t))
	assert.NoError(t, err)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lrsweek.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lrs:
  url: http://lrs.example
  port: 9000
  params:
    - limit=100
  timeout: 5s
output:
  dir: out
`), 0o644))

	opts := noEnv(t)
	opts.ConfigFile = path
	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "http://lrs.example", cfg.LRS.URL)
	assert.Equal(t, 9000, cfg.LRS.Port)
	assert.Equal(t, map[string]string{"limit": "100"}, cfg.LRS.Params)
	assert.Equal(t, 5*time.Second, cfg.LRS.Timeout)
	assert.Equal(t, "out", cfg.Output.Dir)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	opts := noEnv(t)
	opts.ConfigFile = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := Load(opts)
	assert.Error(t, err)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("LRSWEEK_LRS_URL", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--url", "from-flag",
		"--port", "443",
		"--headers", "A=1,B=2",
		"--timeout", "2s",
	}))

	opts := noEnv(t)
	opts.Flags = fs
	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.LRS.URL)
	assert.Equal(t, 443, cfg.LRS.Port)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, cfg.LRS.Headers)
	assert.Equal(t, 2*time.Second, cfg.LRS.Timeout)
	// Unchanged flags leave defaults alone.
	assert.Equal(t, "logSP31", cfg.Output.Prefix)
	assert.Equal(t, "testsuite", cfg.LRS.User)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad auth", "LRSWEEK_LRS_AUTH", "nopassword"},
		{"bad timeout", "LRSWEEK_LRS_TIMEOUT", "soon"},
		{"prefix with slash", "LRSWEEK_OUTPUT_PREFIX", "a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(noEnv(t))
			assert.Error(t, err)
		})
	}
}
