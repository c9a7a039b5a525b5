package mongodb

import (
	"testing"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(offset time.Duration) time.Time {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(offset)
}

func TestSelectClaimable_PendingAvailable(t *testing.T) {
	now := ts(0)
	a, b := uuid.New(), uuid.New()

	docs := []candidate{
		{ID: a, Seq: 1, AggregateID: "order-1", Status: sharedDomain.OutboxPending, AvailableAt: ts(-time.Minute)},
		{ID: b, Seq: 2, AggregateID: "order-2", Status: sharedDomain.OutboxPending, AvailableAt: ts(time.Minute)},
	}

	got := selectClaimable(docs, now, ts(-5*time.Minute), 10)

	// Solo el primero: el segundo aún no está disponible (backoff futuro).
	assert.Equal(t, []uuid.UUID{a}, got)
}

func TestSelectClaimable_OrderingPerAggregate(t *testing.T) {
	now := ts(0)
	first, second, other := uuid.New(), uuid.New(), uuid.New()

	docs := []candidate{
		// El primer mensaje del agregado está en backoff; el segundo, aunque
		// disponible, debe esperar a que el primero termine.
		{ID: first, Seq: 1, AggregateID: "order-1", Status: sharedDomain.OutboxPending, AvailableAt: ts(time.Minute)},
		{ID: second, Seq: 2, AggregateID: "order-1", Status: sharedDomain.OutboxPending, AvailableAt: ts(-time.Minute)},
		{ID: other, Seq: 3, AggregateID: "order-2", Status: sharedDomain.OutboxPending, AvailableAt: ts(-time.Minute)},
	}

	got := selectClaimable(docs, now, ts(-5*time.Minute), 10)

	assert.Equal(t, []uuid.UUID{other}, got)
}

func TestSelectClaimable_InFlightBlocksSiblings(t *testing.T) {
	now := ts(0)
	claimedAt := ts(-time.Minute)
	inFlight, sibling := uuid.New(), uuid.New()

	docs := []candidate{
		{ID: inFlight, Seq: 1, AggregateID: "order-1", Status: sharedDomain.OutboxProcessing, ClaimedAt: &claimedAt},
		{ID: sibling, Seq: 2, AggregateID: "order-1", Status: sharedDomain.OutboxPending, AvailableAt: ts(-time.Minute)},
	}

	// Claim vivo (posterior a staleBefore): ni el mensaje en vuelo ni su
	// hermano posterior son reclamables.
	got := selectClaimable(docs, now, ts(-5*time.Minute), 10)
	assert.Empty(t, got)
}

func TestSelectClaimable_StaleClaimReclaimed(t *testing.T) {
	now := ts(0)
	claimedAt := ts(-10 * time.Minute)
	stuck := uuid.New()

	docs := []candidate{
		{ID: stuck, Seq: 1, AggregateID: "order-1", Status: sharedDomain.OutboxProcessing, ClaimedAt: &claimedAt},
	}

	got := selectClaimable(docs, now, ts(-5*time.Minute), 10)

	assert.Equal(t, []uuid.UUID{stuck}, got)
}

func TestSelectClaimable_RespectsLimit(t *testing.T) {
	now := ts(0)

	var docs []candidate
	for i := 0; i < 5; i++ {
		docs = append(docs, candidate{
			ID:          uuid.New(),
			Seq:         int64(i + 1),
			AggregateID: uuid.NewString(),
			Status:      sharedDomain.OutboxPending,
			AvailableAt: ts(-time.Minute),
		})
	}

	got := selectClaimable(docs, now, ts(-5*time.Minute), 3)

	require.Len(t, got, 3)
	// FIFO: los tres primeros por seq.
	assert.Equal(t, docs[0].ID, got[0])
	assert.Equal(t, docs[2].ID, got[2])
}

func TestSelectClaimable_NoAggregateID_NeverBlocks(t *testing.T) {
	now := ts(0)
	a, b := uuid.New(), uuid.New()

	docs := []candidate{
		{ID: a, Seq: 1, Status: sharedDomain.OutboxPending, AvailableAt: ts(-time.Minute)},
		{ID: b, Seq: 2, Status: sharedDomain.OutboxPending, AvailableAt: ts(-time.Minute)},
	}

	got := selectClaimable(docs, now, ts(-5*time.Minute), 10)

	assert.Equal(t, []uuid.UUID{a, b}, got)
}
