package invoices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 10, 15, 4, 5, 0, time.UTC)

func TestDetermineCommercialStatus(t *testing.T) {
	require.Equal(t, StatusFictive, DetermineCommercialStatus(nil))
	require.Equal(t, StatusStandard, DetermineCommercialStatus([]Payment{
		{Amount: -50}, {Amount: 120},
	}))
	// A document holding only refunds never becomes standard.
	require.Equal(t, StatusFictive, DetermineCommercialStatus([]Payment{
		{Amount: -50}, {Amount: -20},
	}))
}

func TestCalculateTotalSkipsCanceledLines(t *testing.T) {
	items := []Item{
		{Name: "Sofa", Qty: 2, Price: 200, Total: 400, Status: ItemSold},
		{Name: "Chair", Qty: 1, Price: 240, Total: 240, Status: ItemReserved},
		{Name: "Lamp", Qty: 1, Price: 160, Total: 160, Status: ItemCanceled},
	}
	require.InDelta(t, 640.0, CalculateTotal(items), 0.0001)
}

func TestCalculateTotalFallsBackToQtyTimesPrice(t *testing.T) {
	items := []Item{{Name: "Desk", Qty: 3, Price: 150, Status: ItemReserved}}
	require.InDelta(t, 450.0, CalculateTotal(items), 0.0001)
}

func TestCalculateLifecycleStatus(t *testing.T) {
	sold := Item{Status: ItemSold}
	reserved := Item{Status: ItemReserved}
	canceled := Item{Status: ItemCanceled}
	none := Item{Status: ItemNone}

	require.Equal(t, LifecycleCompleted, CalculateLifecycleStatus(StatusStandard, []Item{sold, sold}))
	require.Equal(t, LifecycleReserved, CalculateLifecycleStatus(StatusStandard, []Item{reserved}))
	require.Equal(t, LifecycleUnfinished, CalculateLifecycleStatus(StatusStandard, []Item{sold, reserved}))
	// Canceled and none lines do not count as active.
	require.Equal(t, LifecycleCompleted, CalculateLifecycleStatus(StatusStandard, []Item{sold, canceled}))
	require.Equal(t, LifecycleUnfinished, CalculateLifecycleStatus(StatusStandard, []Item{canceled}))
	require.Equal(t, LifecycleUnfinished, CalculateLifecycleStatus(StatusStandard, []Item{none}))
	// Fictive documents are always unfinished regardless of items.
	require.Equal(t, LifecycleUnfinished, CalculateLifecycleStatus(StatusFictive, []Item{sold, sold}))
}

func TestDisplayStatusOf(t *testing.T) {
	require.Equal(t, DisplayDraft, DisplayStatusOf(StatusFictive, LifecycleUnfinished, nil))
	require.Equal(t, DisplayDraft, DisplayStatusOf(StatusFictive, LifecycleCompleted, nil))
	require.Equal(t, DisplaySold, DisplayStatusOf(StatusStandard, LifecycleCompleted, nil))
	require.Equal(t, DisplayReserved, DisplayStatusOf(StatusStandard, LifecycleReserved, nil))
	require.Equal(t, DisplayCanceled, DisplayStatusOf(StatusStandard, LifecycleUnfinished,
		[]Item{{Status: ItemSold}, {Status: ItemCanceled}}))
	require.Equal(t, DisplayReserved, DisplayStatusOf(StatusStandard, LifecycleUnfinished,
		[]Item{{Status: ItemSold}, {Status: ItemReserved}}))
}

func TestLatestPaymentDate(t *testing.T) {
	require.Nil(t, LatestPaymentDate(nil))
	require.Nil(t, LatestPaymentDate([]Payment{{Amount: 10}}))

	early := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)
	got := LatestPaymentDate([]Payment{{Date: early}, {Date: late}, {Date: early}})
	require.NotNil(t, got)
	require.True(t, got.Equal(late))
}

func TestCalculateSaleDate(t *testing.T) {
	require.Nil(t, CalculateSaleDate(StatusFictive, []Payment{{Date: testNow}}, testNow))

	// No usable payment date: falls back to now.
	got := CalculateSaleDate(StatusStandard, []Payment{{Amount: 10}}, testNow)
	require.NotNil(t, got)
	require.True(t, got.Equal(testNow))

	// Latest payment day combined with the current time-of-day.
	payDay := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	got = CalculateSaleDate(StatusStandard, []Payment{{Date: payDay}}, testNow)
	require.NotNil(t, got)
	require.Equal(t, time.Date(2025, 6, 3, 15, 4, 5, 0, time.UTC), *got)
}

func TestNormalizeItemsDropsBlankNames(t *testing.T) {
	items := NormalizeItems([]Item{
		{Name: "", Qty: 1, Price: 100},
		{Name: "Sofa", Qty: 1, Price: 100},
	}, StatusStandard)
	require.Len(t, items, 1)
	require.Equal(t, "Sofa", items[0].Name)
}

func TestNormalizeItemsFictiveForcesNone(t *testing.T) {
	items := NormalizeItems([]Item{
		{Name: "Sofa", Qty: 1, Price: 100, Status: ItemReserved, ReservationDays: 14},
		{Name: "Chair", Qty: 1, Price: 50, Status: ItemSold},
	}, StatusFictive)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Equal(t, ItemNone, item.Status)
		require.Zero(t, item.ReservationDays)
	}
}

func TestNormalizeItemsStandardPromotesUnresolvedToReserved(t *testing.T) {
	items := NormalizeItems([]Item{
		{Name: "Sofa", Qty: 1, Price: 100},
		{Name: "Chair", Qty: 1, Price: 50, Status: ItemNone},
		{Name: "Lamp", Qty: 1, Price: 20, Status: ItemSold, ReservationDays: 7},
	}, StatusStandard)
	require.Equal(t, ItemReserved, items[0].Status)
	require.Equal(t, ItemReserved, items[1].Status)
	// Sold lines keep their status but never carry a TTL.
	require.Equal(t, ItemSold, items[2].Status)
	require.Zero(t, items[2].ReservationDays)
}

func TestNormalizeItemsComputesLineTotal(t *testing.T) {
	items := NormalizeItems([]Item{{Name: "Desk", Qty: 2, Price: 150}}, StatusStandard)
	require.InDelta(t, 300.0, items[0].Total, 0.0001)
}

func TestFilterPaymentsDropsEpsilonAmounts(t *testing.T) {
	payments := FilterPayments([]Payment{
		{Amount: 0},
		{Amount: 0.005},
		{Amount: -0.005},
		{Amount: -25, Date: testNow, Method: "cash"},
		{Amount: 100, Date: testNow, Method: "card"},
	}, testNow)
	require.Len(t, payments, 2)
	require.InDelta(t, -25.0, payments[0].Amount, 0.0001)
	require.InDelta(t, 100.0, payments[1].Amount, 0.0001)
}

func TestFilterPaymentsDefaultsDateAndMethod(t *testing.T) {
	payments := FilterPayments([]Payment{{Amount: 50}}, testNow)
	require.Len(t, payments, 1)
	require.True(t, payments[0].Date.Equal(testNow))
	require.Equal(t, "other", payments[0].Method)
}
