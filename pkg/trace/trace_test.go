package trace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")

	assert.Equal(t, "abc", FromContext(ctx))
	assert.Empty(t, FromContext(context.Background()))
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background(), "req-1")
	assert.Equal(t, "req-1", id)
	assert.Equal(t, "req-1", FromContext(ctx))

	// An id already on the context wins over the incoming one.
	_, id = Ensure(ctx, "req-2")
	assert.Equal(t, "req-1", id)

	ctx, id = Ensure(context.Background(), "")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, FromContext(ctx))
}
