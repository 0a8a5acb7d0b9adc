package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("TEST_WINDOW", "30")
	assert.Equal(t, 30, getEnvAsInt("TEST_WINDOW", 45))

	t.Setenv("TEST_WINDOW", "not-a-number")
	assert.Equal(t, 45, getEnvAsInt("TEST_WINDOW", 45), "malformed values fall back to the default")

	assert.Equal(t, 45, getEnvAsInt("TEST_WINDOW_UNSET", 45))
}

func TestLoadConfigMalformedReuseWindow(t *testing.T) {
	t.Setenv("CONVERSATION_REUSE_WINDOW_MIN", "soon")
	t.Setenv("DATABASE_URL", "test.db")

	LoadConfig()

	assert.Equal(t, 45*time.Minute, AppConfig.ReuseWindow)
}
