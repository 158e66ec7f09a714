package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"pawcare/internal/feed"
	"pawcare/pkg/circuitbreaker"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	{
		var v map[string]any
		syntaxErr = json.Unmarshal([]byte("{"), &v)
	}

	cases := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"permission denied", fmt.Errorf("watch: %w", feed.ErrPermissionDenied), false, "permission_denied"},
		{"feed not found", feed.ErrNotFound, false, "not_found"},
		{"no rows", fmt.Errorf("mark read: %w", pgx.ErrNoRows), false, "not_found"},
		{"breaker open", circuitbreaker.ErrCircuitBreakerOpen, true, "circuit_open"},
		{"stream closed", feed.ErrStreamClosed, true, "stream_closed"},
		{"redis closed", redis.ErrClosed, true, "stream_closed"},
		{"bad json", syntaxErr, false, "json_decode_error"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true, "network_error"},
		{"duplicate", errors.New(`ERROR: duplicate key value violates unique constraint "notifications_event_id_key"`), false, "duplicate_key"},
		{"connection text", errors.New("connection reset by peer"), true, "connection_error"},
		{"unknown", errors.New("boom"), true, "unknown_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestIsRetryableError_Nil(t *testing.T) {
	retryable, kind := IsRetryableError(nil)
	assert.False(t, retryable)
	assert.Empty(t, kind)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
