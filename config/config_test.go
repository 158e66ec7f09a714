package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_AppliesDefaults(t *testing.T) {
	cfg, err := decode(map[string]interface{}{
		"db": map[string]interface{}{"host": "pg", "port": 5433},
	})
	require.NoError(t, err)

	assert.Equal(t, "pg", cfg.DB.Host)
	assert.Equal(t, 5433, cfg.DB.Port)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Feed.Driver)
	assert.Equal(t, 8, cfg.Notify.BulkConcurrency)

	lo, hi := cfg.ResubscribeBackoff()
	assert.Equal(t, 500*time.Millisecond, lo)
	assert.Equal(t, 30*time.Second, hi)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout())
	assert.Equal(t, 30*time.Second, cfg.BreakerTimeout())
}

func TestDecode_KeepsExplicitValues(t *testing.T) {
	cfg, err := decode(map[string]interface{}{
		"feed":   map[string]interface{}{"driver": "memory"},
		"notify": map[string]interface{}{"bulk_concurrency": 2, "write_timeout_ms": 250},
	})
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Feed.Driver)
	assert.Equal(t, 2, cfg.Notify.BulkConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout())
}
