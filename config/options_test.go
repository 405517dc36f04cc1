//go:build unix

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamwoolhether/httpmulti/client"
	"github.com/adamwoolhether/httpmulti/client/handle"
	"github.com/adamwoolhether/httpmulti/client/handle/handletest"
)

func TestConfig_Options(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
pool_size: 3
cookies: true
user_agent: agent/1.0
impersonate:
  target: edge101
`), "engine.yaml")
	require.NoError(t, err)

	factory := &handletest.Factory{}
	c, err := client.Build(append(cfg.Options(), client.WithBackend(factory))...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	require.Len(t, factory.Handles, 3)
	base := factory.Handles[0].Base
	assert.Equal(t, "agent/1.0", base.UserAgent)
	assert.Equal(t, &handle.Impersonation{Target: "edge101"}, base.Impersonate)
	require.NotNil(t, base.Share)
	assert.NotNil(t, base.Share.Jar)

	st := c.Stats()
	assert.Equal(t, 3, st.PoolSize)
}
