package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorder_StoresBeforeAndAfter(t *testing.T) {
	repos := memory.NewRepositories()
	r := NewRecorder(repos.Audit, zap.NewNop())
	ctx := context.Background()

	before := domain.Booking{ID: "b1", Status: domain.BookingStatusPending}
	after := domain.Booking{ID: "b1", Status: domain.BookingStatusConfirmed}
	r.Record(ctx, "admin-1", "booking.confirm", "booking", "b1", before, after)

	entries, err := repos.Audit.ListByEntity(ctx, "booking", "b1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-1", entries[0].ActorID)
	assert.NotEmpty(t, entries[0].ID)

	var got domain.Booking
	require.NoError(t, json.Unmarshal(entries[0].After, &got))
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
}

func TestRecorder_NilBeforeIsOmitted(t *testing.T) {
	repos := memory.NewRepositories()
	r := NewRecorder(repos.Audit, zap.NewNop())
	ctx := context.Background()

	r.Record(ctx, "h1", "payout.request", "payout", "p1", nil, map[string]int{"amount": 5})

	entries, err := repos.Audit.ListByEntity(ctx, "payout", "p1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Before)
	assert.JSONEq(t, `{"amount":5}`, string(entries[0].After))
}

func TestRecorder_StorageFailureIsSwallowed(t *testing.T) {
	repos := memory.NewRepositories()
	repos.FailNext("Audit.Insert", domain.ErrTransientStorage)
	r := NewRecorder(repos.Audit, zap.NewNop())

	assert.NotPanics(t, func() {
		r.Record(context.Background(), "a", "x", "booking", "b1", nil, nil)
	})
	entries, err := repos.Audit.ListByEntity(context.Background(), "booking", "b1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
