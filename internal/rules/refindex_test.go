package rules

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *ReferenceIndex {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReferenceIndex(client)
}

func TestReferenceIndexRegisterAndList(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	ruleID := uuid.New()

	require.NoError(t, idx.Register(ctx, ruleID, "scenario-a"))
	require.NoError(t, idx.Register(ctx, ruleID, "scenario-b"))
	require.NoError(t, idx.Register(ctx, ruleID, "scenario-a"))

	refs, err := idx.List(ctx, ruleID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"scenario-a", "scenario-b"}, refs)

	count, err := idx.Count(ctx, ruleID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestReferenceIndexUnregister(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	ruleID := uuid.New()

	require.NoError(t, idx.Register(ctx, ruleID, "scenario-a"))
	require.NoError(t, idx.Unregister(ctx, ruleID, "scenario-a"))

	count, err := idx.Count(ctx, ruleID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReferenceIndexRequiresScenario(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Register(context.Background(), uuid.New(), "")
	assert.Error(t, err)
}

func TestReferenceIndexIsolatedPerRule(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	ruleA, ruleB := uuid.New(), uuid.New()

	require.NoError(t, idx.Register(ctx, ruleA, "scenario-a"))

	refs, err := idx.List(ctx, ruleB)
	require.NoError(t, err)
	assert.Empty(t, refs)
}
