package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Maphikza/sip-privacy-wallet/internal/keystore"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(keystore.NewMemory(), nil, 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Add(ctx, Record{
			ID:        fmt.Sprintf("p%d", i),
			Direction: Receive,
			Status:    StatusConfirmed,
			Timestamp: time.Unix(int64(i), 0),
		}))
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "p4", list[0].ID)
	assert.Equal(t, "p2", list[2].ID)

	_, err = s.Get(ctx, "p0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkClaimed(t *testing.T) {
	ctx := context.Background()
	s := New(keystore.NewMemory(), nil, 0)

	amount := uint64(250)
	require.NoError(t, s.Add(ctx, Record{ID: "a", Direction: Receive, Amount: &amount, Status: StatusConfirmed}))

	rec, err := s.MarkClaimed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, rec.Claimed)
	assert.Equal(t, StatusClaimed, rec.Status)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Claimed)
	require.NotNil(t, got.Amount)
	assert.Equal(t, amount, *got.Amount)

	_, err = s.MarkClaimed(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownAmountSurvivesPersistence(t *testing.T) {
	ctx := context.Background()
	s := New(keystore.NewMemory(), nil, 0)

	require.NoError(t, s.Add(ctx, Record{ID: "u", Direction: Receive, Status: StatusConfirmed}))
	got, err := s.Get(ctx, "u")
	require.NoError(t, err)
	assert.Nil(t, got.Amount)
}

func TestSetStatusAndClear(t *testing.T) {
	ctx := context.Background()
	s := New(keystore.NewMemory(), nil, 0)

	require.NoError(t, s.Add(ctx, Record{ID: "s", Direction: Send, Status: StatusPending}))
	require.NoError(t, s.SetStatus(ctx, "s", StatusConfirmed))
	got, err := s.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	require.NoError(t, s.Clear(ctx))
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddSkipsKnownIDs(t *testing.T) {
	ctx := context.Background()
	s := New(keystore.NewMemory(), nil, 0)

	require.NoError(t, s.Add(ctx, Record{ID: "x", Direction: Receive}))
	require.NoError(t, s.Add(ctx, Record{ID: "x", Direction: Receive}, Record{ID: "y", Direction: Receive}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
