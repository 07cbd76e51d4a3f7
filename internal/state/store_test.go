package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/matst80/rfbhost/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RegisterListRemove(t *testing.T) {
	ctx := context.Background()
	m := state.NewMemory()
	now := time.Now()

	require.NoError(t, m.Register(ctx, state.Record{ID: "b", Display: 1, Started: now.Add(time.Second)}))
	require.NoError(t, m.Register(ctx, state.Record{ID: "a", Display: 1, Started: now}))

	recs, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)

	require.NoError(t, m.Remove(ctx, "a"))
	assert.Equal(t, state.Stats{Active: 1, Total: 2}, m.Stats())
}

func TestMemory_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	m := state.NewMemory()
	require.NoError(t, m.Register(ctx, state.Record{ID: "x"}))
	assert.ErrorIs(t, m.Register(ctx, state.Record{ID: "x"}), state.ErrDuplicate)
}

func TestMemory_Flags(t *testing.T) {
	m := state.NewMemory()
	assert.False(t, m.IsReady())
	m.SetReady(true)
	m.SetClosing(true)
	assert.True(t, m.IsReady())
	assert.True(t, m.IsClosing())
}

func TestNew_InMemoryWithoutAddr(t *testing.T) {
	s, err := state.New("", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &state.Memory{}, s)
	assert.NoError(t, s.Close())
}

func TestNew_UnreachableRedis(t *testing.T) {
	s, err := state.New("127.0.0.1:1", "", 0)
	assert.Nil(t, s)
	assert.ErrorContains(t, err, "redis connection failed")
}
