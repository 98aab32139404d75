package reservation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	entries map[string]Entry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]Entry)}
}

func entryKey(productID, holderID int64) string {
	return fmt.Sprintf("%d:%d", productID, holderID)
}

func (s *memoryStore) EntriesForProduct(ctx context.Context, productID int64) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) Upsert(ctx context.Context, entry Entry) error {
	s.entries[entryKey(entry.ProductID, entry.HolderID)] = entry
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, productID, holderID int64) error {
	delete(s.entries, entryKey(productID, holderID))
	return nil
}

func (s *memoryStore) DeleteForHolder(ctx context.Context, holderID int64) error {
	for k, e := range s.entries {
		if e.HolderID == holderID {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *memoryStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for k, e := range s.entries {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

type memoryStock struct {
	onHand map[int64]float64
	names  map[int64]string
}

func (s *memoryStock) StockOnHand(ctx context.Context, productID int64) (*float64, error) {
	if qty, ok := s.onHand[productID]; ok {
		v := qty
		return &v, nil
	}
	return nil, nil
}

func (s *memoryStock) Describe(ctx context.Context, productID int64) (string, string, error) {
	if name, ok := s.names[productID]; ok {
		return name, fmt.Sprintf("SKU-%d", productID), nil
	}
	return fmt.Sprintf("product #%d", productID), "", nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestLedger(store *memoryStore, stock *memoryStock) *Ledger {
	if stock == nil {
		stock = &memoryStock{}
	}
	return NewLedger(store, stock, fixedClock(testNow))
}

func TestReservedSumsOnlyLiveEntries(t *testing.T) {
	store := newMemoryStore()
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)
	store.entries[entryKey(99, 101)] = Entry{ProductID: 99, HolderID: 101, Qty: 3, ExpiresAt: &future}
	store.entries[entryKey(99, 102)] = Entry{ProductID: 99, HolderID: 102, Qty: 5, ExpiresAt: &past}
	store.entries[entryKey(99, 103)] = Entry{ProductID: 99, HolderID: 103, Qty: 2, ExpiresAt: nil}

	ledger := newTestLedger(store, nil)
	total, err := ledger.Reserved(context.Background(), 99)
	require.NoError(t, err)
	require.InDelta(t, 5.0, total, 0.0001)
}

func TestAvailableExcludesOwnHolder(t *testing.T) {
	store := newMemoryStore()
	future := testNow.Add(time.Hour)
	store.entries[entryKey(77, 55)] = Entry{ProductID: 77, HolderID: 55, Qty: 4, ExpiresAt: &future}
	store.entries[entryKey(77, 66)] = Entry{ProductID: 77, HolderID: 66, Qty: 6, ExpiresAt: &future}

	stock := &memoryStock{onHand: map[int64]float64{77: 20}}
	ledger := newTestLedger(store, stock)

	available, err := ledger.Available(context.Background(), 77, 55)
	require.NoError(t, err)
	require.NotNil(t, available)
	require.InDelta(t, 14.0, *available, 0.0001)
}

func TestAvailableFloorsAtZero(t *testing.T) {
	store := newMemoryStore()
	store.entries[entryKey(5, 1)] = Entry{ProductID: 5, HolderID: 1, Qty: 30}

	stock := &memoryStock{onHand: map[int64]float64{5: 10}}
	ledger := newTestLedger(store, stock)

	available, err := ledger.Available(context.Background(), 5, 0)
	require.NoError(t, err)
	require.NotNil(t, available)
	require.Zero(t, *available)
}

func TestAvailableNilForUntrackedProduct(t *testing.T) {
	ledger := newTestLedger(newMemoryStore(), &memoryStock{})
	available, err := ledger.Available(context.Background(), 123, 0)
	require.NoError(t, err)
	require.Nil(t, available)
}

func TestSetReservationReplacesNotMerges(t *testing.T) {
	store := newMemoryStore()
	ledger := newTestLedger(store, nil)
	ctx := context.Background()

	require.NoError(t, ledger.SetReservation(ctx, 10, 20, 3, 0))
	require.NoError(t, ledger.SetReservation(ctx, 10, 20, 5, 0))

	entry := store.entries[entryKey(10, 20)]
	require.InDelta(t, 5.0, entry.Qty, 0.0001)
	require.Nil(t, entry.ExpiresAt)

	total, err := ledger.Reserved(ctx, 10)
	require.NoError(t, err)
	require.InDelta(t, 5.0, total, 0.0001)
}

func TestSetReservationComputesExpiryFromDays(t *testing.T) {
	store := newMemoryStore()
	ledger := newTestLedger(store, nil)

	require.NoError(t, ledger.SetReservation(context.Background(), 10, 20, 2, 14))

	entry := store.entries[entryKey(10, 20)]
	require.NotNil(t, entry.ExpiresAt)
	require.Equal(t, testNow.AddDate(0, 0, 14), *entry.ExpiresAt)
}

func TestSetReservationZeroQtyReleases(t *testing.T) {
	store := newMemoryStore()
	ledger := newTestLedger(store, nil)
	ctx := context.Background()

	require.NoError(t, ledger.SetReservation(ctx, 10, 20, 3, 0))
	require.NoError(t, ledger.SetReservation(ctx, 10, 20, 0, 7))
	require.Empty(t, store.entries)
}

func TestReleaseIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	ledger := newTestLedger(store, nil)
	ctx := context.Background()

	require.NoError(t, ledger.Release(ctx, 10, 20))
	require.NoError(t, ledger.SetReservation(ctx, 10, 20, 3, 0))
	require.NoError(t, ledger.Release(ctx, 10, 20))
	require.NoError(t, ledger.Release(ctx, 10, 20))
	require.Empty(t, store.entries)
}

func TestPurgeHolderDropsAllProducts(t *testing.T) {
	store := newMemoryStore()
	ledger := newTestLedger(store, nil)
	ctx := context.Background()

	require.NoError(t, ledger.SetReservation(ctx, 1, 20, 3, 0))
	require.NoError(t, ledger.SetReservation(ctx, 2, 20, 4, 0))
	require.NoError(t, ledger.SetReservation(ctx, 2, 21, 1, 0))

	require.NoError(t, ledger.PurgeHolder(ctx, 20))
	require.Len(t, store.entries, 1)
	_, ok := store.entries[entryKey(2, 21)]
	require.True(t, ok)
}

func TestSweepExpiredRemovesOnlyLapsedEntries(t *testing.T) {
	store := newMemoryStore()
	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Minute)
	store.entries[entryKey(1, 1)] = Entry{ProductID: 1, HolderID: 1, Qty: 1, ExpiresAt: &past}
	store.entries[entryKey(1, 2)] = Entry{ProductID: 1, HolderID: 2, Qty: 1, ExpiresAt: &future}
	store.entries[entryKey(1, 3)] = Entry{ProductID: 1, HolderID: 3, Qty: 1}

	ledger := newTestLedger(store, nil)
	removed, err := ledger.SweepExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
	require.Len(t, store.entries, 2)
}
