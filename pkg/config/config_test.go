package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "fredcredit.db", cfg.DBConn)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "@daily", cfg.SweepSchedule)
	assert.Empty(t, cfg.RedisAddr)
}

func TestNewConfig_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_CONN", "host=localhost dbname=credit sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestNewConfig_Invalid(t *testing.T) {
	t.Run("driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "mysql")
		_, err := NewConfig()
		assert.Error(t, err)
	})
	t.Run("ttl", func(t *testing.T) {
		t.Setenv("CACHE_TTL", "soon")
		_, err := NewConfig()
		assert.Error(t, err)
	})
	t.Run("secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := NewConfig()
		assert.Error(t, err)
	})
}
