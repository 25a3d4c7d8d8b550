package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigDefaults(t *testing.T) {
	t.Setenv("APPSTORE_TIMEOUT_SECONDS", "")
	t.Setenv("DEFAULT_RATE_LIMIT", "")

	require.NoError(t, InitConfig())
	assert.Equal(t, 5*time.Second, AppConfig.AppStoreTimeout)
	assert.Equal(t, 60, AppConfig.DefaultRateLimit)
	assert.Equal(t, time.Hour, AppConfig.AlertCooldown)
}

func TestInitConfigFromEnvironment(t *testing.T) {
	t.Setenv("APPSTORE_SHARED_SECRET", "s3cret")
	t.Setenv("APPSTORE_TIMEOUT_SECONDS", "3")
	t.Setenv("DEFAULT_RATE_LIMIT", "not-a-number")

	require.NoError(t, InitConfig())
	assert.Equal(t, "s3cret", AppConfig.AppStoreSharedSecret)
	assert.Equal(t, 3*time.Second, AppConfig.AppStoreTimeout)
	assert.Equal(t, 60, AppConfig.DefaultRateLimit)
}
