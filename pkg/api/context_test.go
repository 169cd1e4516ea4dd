package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerRoundTrip(t *testing.T) {
	caller := &CallerContext{Roles: []string{"editor"}, UserID: "u1"}
	ctx := WithCaller(context.Background(), caller)
	assert.Same(t, caller, CallerFrom(ctx))
}

func TestCallerFromEmptyContext(t *testing.T) {
	got := CallerFrom(context.Background())
	require.NotNil(t, got)
	assert.Empty(t, got.Roles)
	assert.False(t, got.IsSystemBypass)
}

func TestSystemContext(t *testing.T) {
	assert.True(t, SystemContext().IsSystemBypass)
}
