package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamwoolhether/httpmulti/client/errs"
)

func TestParseConfig_YAML(t *testing.T) {
	data := []byte(`
pool_size: 10
timeout: 1m30s
follow_redirects: false
max_redirects: -1
proxy: http://proxy.internal:3128
verify_tls: false
impersonate:
  target: safari15_5
  default_headers: false
cookies: true
user_agent: agent/1.0
throttle:
  rps: 20
  burst: 5
log_level: debug
`)

	cfg, err := ParseConfig(data, "engine.yaml")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.PoolSize)
	require.NotNil(t, cfg.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Timeout.Std())
	require.NotNil(t, cfg.FollowRedirects)
	assert.False(t, *cfg.FollowRedirects)
	require.NotNil(t, cfg.MaxRedirects)
	assert.Equal(t, -1, *cfg.MaxRedirects)
	assert.Equal(t, "http://proxy.internal:3128", cfg.Proxy)
	require.NotNil(t, cfg.VerifyTLS)
	assert.False(t, *cfg.VerifyTLS)
	assert.Equal(t, &Impersonate{Target: "safari15_5"}, cfg.Impersonate)
	assert.True(t, cfg.Cookies)
	assert.Equal(t, "agent/1.0", cfg.UserAgent)
	assert.Equal(t, &Throttle{RPS: 20, Burst: 5}, cfg.Throttle)
	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Len(t, cfg.Options(), 11)
}

func TestParseConfig_JSON(t *testing.T) {
	data := []byte(`{"pool_size": 3, "timeout": 15, "max_redirects": 0}`)

	cfg, err := ParseConfig(data, "engine.json")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.PoolSize)
	require.NotNil(t, cfg.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Timeout.Std())
	require.NotNil(t, cfg.MaxRedirects)
	assert.Equal(t, 0, *cfg.MaxRedirects, "explicit zero is kept")
	assert.Nil(t, cfg.FollowRedirects)
	assert.Nil(t, cfg.Impersonate)
	assert.Len(t, cfg.Options(), 3)
}

func TestParseConfig_Durations(t *testing.T) {
	tests := map[string]struct {
		yaml string
		exp  time.Duration
	}{
		"go duration":    {yaml: "timeout: 500ms", exp: 500 * time.Millisecond},
		"integer":        {yaml: "timeout: 30", exp: 30 * time.Second},
		"quoted integer": {yaml: `timeout: "45"`, exp: 45 * time.Second},
		"zero":           {yaml: "timeout: 0", exp: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tc.yaml), "")
			require.NoError(t, err)
			require.NotNil(t, cfg.Timeout)
			assert.Equal(t, tc.exp, cfg.Timeout.Std())
		})
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := map[string]struct {
		data  string
		path  string
		field string
	}{
		"pool size":     {data: "pool_size: -1", field: "pool_size"},
		"negative":      {data: "timeout: -5s", field: "timeout"},
		"max redirects": {data: "max_redirects: -2", field: "max_redirects"},
		"proxy":         {data: "proxy: not a url", field: "proxy"},
		"ca file":       {data: "ca_file: /does/not/exist.pem", field: "ca_file"},
		"throttle":      {data: "throttle: {rps: 0, burst: 1}", field: "rps"},
		"log level":     {data: "log_level: loud", field: "log_level"},
		"json":          {data: `{"timeout": true}`, path: "engine.json"},
		"duration":      {data: "timeout: soon"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.data), tc.path)
			require.Error(t, err)

			if tc.field == "" {
				return
			}
			assert.True(t, errs.IsConfiguration(err))
			assert.Contains(t, errs.GetFieldErrors(err).Fields(), tc.field)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	ca := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("pem"), 0o600))

	path := filepath.Join(dir, "engine.yml")
	require.NoError(t, os.WriteFile(path, []byte("ca_file: "+ca+"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ca, cfg.CAFile)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseDurationString(t *testing.T) {
	d, err := ParseDurationString("2m")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	d, err = ParseDurationString("")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ParseDurationString("12abc")
	assert.Error(t, err)
}
