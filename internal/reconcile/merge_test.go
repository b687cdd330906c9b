package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

func order(id string, at time.Time, items ...models.LineItem) models.Order {
	o := models.Order{ID: id, CreatedAt: at, PaymentStatus: models.PaymentStatusPaid}
	o.Items = items
	o.TotalMinor = o.ItemsTotal()
	return o
}

func line(name string, minor int64) models.LineItem {
	return models.LineItem{SKU: SynthesizeSKU(name, ""), Name: name, Quantity: 1, UnitMinor: minor, TotalMinor: minor}
}

func ids(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestMerge_PrecedenceAndPlaceholders(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	remote := []models.Order{order("A", t0, line("Remote A", 100))}
	pending := []models.Order{
		order("A", t0, line("Pending A", 100)),
		order("B", t0.Add(time.Hour), line("Pending B", 200)),
	}
	local := []models.Order{
		order("temp-1", t0.Add(2*time.Hour), line("Local", 300)),
		order("B", t0.Add(time.Hour), line("Local B", 200)),
	}

	merged, stats := MergeWithStats(remote, pending, local)

	require.Equal(t, []string{"B", "A"}, ids(merged))
	assert.Equal(t, "Pending B", merged[0].Items[0].Name)
	assert.Equal(t, models.OriginPending, merged[0].Origin)
	assert.Equal(t, "Remote A", merged[1].Items[0].Name)
	assert.Equal(t, models.OriginRemote, merged[1].Origin)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 1, stats.Placeholders)
}

func TestMerge_KeepsPlaceholdersWithoutRemote(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	merged := Merge(nil, nil, []models.Order{order("temp-1", t0, line("Local", 300))})

	require.Len(t, merged, 1)
	assert.Equal(t, "temp-1", merged[0].ID)
}

func TestMerge_OriginTakenFromPosition(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	mislabelled := order("A", t0, line("Local copy", 100))
	mislabelled.Origin = models.OriginRemote

	merged := Merge(
		[]models.Order{order("A", t0, line("Remote", 100))},
		nil,
		[]models.Order{mislabelled},
	)

	require.Len(t, merged, 1)
	assert.Equal(t, "Remote", merged[0].Items[0].Name)
}

func TestMerge_FirstWinsWithinOrigin(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	merged := Merge([]models.Order{
		order("A", t0, line("first", 100)),
		order("A", t0, line("second", 100)),
	}, nil, nil)

	require.Len(t, merged, 1)
	assert.Equal(t, "first", merged[0].Items[0].Name)
}

func TestMerge_SortsNewestFirstThenByID(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	merged := Merge([]models.Order{
		order("C", t0),
		order("B", t0.Add(time.Minute)),
		order("A", t0),
	}, nil, nil)

	assert.Equal(t, []string{"B", "A", "C"}, ids(merged))
}

func TestMerge_Idempotent(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	remote := []models.Order{order("A", t0, line("Remote A", 100))}
	pending := []models.Order{order("A", t0), order("B", t0.Add(time.Hour), line("B", 50))}
	local := []models.Order{order("temp-9", t0, line("L", 10)), order("C", t0.Add(-time.Hour), line("C", 20))}

	once := Merge(remote, pending, local)
	twice, stats := MergeAll(once)

	assert.Equal(t, once, twice)
	assert.Zero(t, stats.Duplicates)
	assert.Zero(t, stats.Placeholders)
}

func TestMerge_UniqueIDs(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	remote := []models.Order{order("A", t0), order("B", t0), order("A", t0)}
	pending := []models.Order{order("B", t0), order("C", t0)}
	local := []models.Order{order("C", t0), order("A", t0), order("D", t0)}

	merged := Merge(remote, pending, local)

	seen := map[string]bool{}
	for _, o := range merged {
		assert.False(t, seen[o.ID], "duplicate id %s", o.ID)
		seen[o.ID] = true
	}
	assert.Len(t, merged, 4)
}

func TestMerge_BackfillsFromSupersededDuplicate(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	bare := models.Order{ID: "A", CreatedAt: t0, PaymentStatus: models.PaymentStatusPaid,
		Items: []models.LineItem{SyntheticItem("", 0)}}

	merged, stats := MergeWithStats(
		[]models.Order{bare},
		[]models.Order{order("A", t0, line("Mounjaro", 16999))},
		nil,
	)

	require.Len(t, merged, 1)
	assert.Equal(t, models.OriginRemote, merged[0].Origin)
	assert.Equal(t, "Mounjaro", merged[0].Items[0].Name)
	assert.Equal(t, int64(16999), merged[0].TotalMinor)
	assert.Equal(t, 1, stats.Backfilled)
}

func TestMerge_BackfillKeepsSyntheticLineInStep(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	bare := models.Order{ID: "A", CreatedAt: t0, Items: []models.LineItem{SyntheticItem("Consultation", 0)}}
	loser := models.Order{ID: "A", CreatedAt: t0, TotalMinor: 2999, Items: []models.LineItem{SyntheticItem("Consultation", 2999)}}

	merged := Merge([]models.Order{bare}, nil, []models.Order{loser})

	require.Len(t, merged, 1)
	assert.Equal(t, int64(2999), merged[0].TotalMinor)
	assert.Equal(t, int64(2999), merged[0].Items[0].TotalMinor)
	assert.Equal(t, int64(2999), merged[0].Items[0].UnitMinor)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	bare := models.Order{ID: "A", CreatedAt: t0, Items: []models.LineItem{SyntheticItem("", 0)}}
	remote := []models.Order{bare}

	Merge(remote, []models.Order{order("A", t0, line("Mounjaro", 100))}, nil)

	assert.True(t, remote[0].Items[0].Synthetic())
	assert.Equal(t, models.Origin(""), remote[0].Origin)
}

func TestMerge_SetsDisplayStatus(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	o := order("A", t0, line("X", 1))
	o.BookingStatus = models.BookingStatusPending

	merged := Merge([]models.Order{o}, nil, nil)

	assert.Equal(t, DisplayAwaitingApproval, merged[0].DisplayStatus)
}

func TestEnrich(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	snapshot := order("REF1", t0, line("Mounjaro", 16999))

	t.Run("fills bare pending order", func(t *testing.T) {
		orders := []models.Order{{ID: "REF1", CreatedAt: t0, Origin: models.OriginPending,
			PaymentStatus: models.PaymentStatusPaid, Items: []models.LineItem{SyntheticItem("", 0)}}}

		out, consumed := Enrich(orders, snapshot)

		assert.True(t, consumed)
		assert.Equal(t, "Mounjaro", out[0].Items[0].Name)
		assert.Equal(t, int64(16999), out[0].TotalMinor)
	})

	t.Run("remote with items consumes without change", func(t *testing.T) {
		remote := order("REF1", t0, line("Remote line", 500))
		remote.Origin = models.OriginRemote

		out, consumed := Enrich([]models.Order{remote}, snapshot)

		assert.True(t, consumed)
		assert.Equal(t, "Remote line", out[0].Items[0].Name)
		assert.Equal(t, int64(500), out[0].TotalMinor)
	})

	t.Run("complete pending order keeps snapshot", func(t *testing.T) {
		pending := order("REF1", t0, line("Pending line", 500))
		pending.Origin = models.OriginPending

		_, consumed := Enrich([]models.Order{pending}, snapshot)

		assert.False(t, consumed)
	})

	t.Run("local orders are ignored", func(t *testing.T) {
		local := models.Order{ID: "REF1", Origin: models.OriginLocal, Items: []models.LineItem{SyntheticItem("", 0)}}

		out, consumed := Enrich([]models.Order{local}, snapshot)

		assert.False(t, consumed)
		assert.True(t, out[0].Items[0].Synthetic())
	})

	t.Run("no match", func(t *testing.T) {
		_, consumed := Enrich([]models.Order{order("OTHER", t0)}, snapshot)
		assert.False(t, consumed)
	})
}

func TestIsAuthoritative(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	withItems := order("REF1", t0, line("Mounjaro", 100))
	withItems.Origin = models.OriginRemote
	bare := models.Order{ID: "REF1", Origin: models.OriginRemote, Items: []models.LineItem{SyntheticItem("", 100)}}
	pending := withItems
	pending.Origin = models.OriginPending

	final := IsAuthoritative("REF1")

	assert.True(t, final([]models.Order{withItems}))
	assert.False(t, final([]models.Order{bare}))
	assert.False(t, final([]models.Order{pending}))
	assert.False(t, final(nil))
}

func TestDisplayStatus(t *testing.T) {
	tests := []struct {
		payment  models.PaymentStatus
		booking  models.BookingStatus
		expected string
	}{
		{models.PaymentStatusCancelled, models.BookingStatusRejected, DisplayCancelled},
		{models.PaymentStatusDelivered, models.BookingStatusRejected, DisplayRejected},
		{models.PaymentStatusDelivered, models.BookingStatusApproved, DisplayDelivered},
		{models.PaymentStatusDispatched, models.BookingStatusPending, DisplayDispatched},
		{models.PaymentStatusPending, models.BookingStatusApproved, DisplayAwaitingPayment},
		{models.PaymentStatusPaid, models.BookingStatusApproved, DisplayApproved},
		{models.PaymentStatusPaid, models.BookingStatusPending, DisplayAwaitingApproval},
		{models.PaymentStatusPaid, models.BookingStatusNone, DisplayPaid},
	}

	for _, tt := range tests {
		o := models.Order{PaymentStatus: tt.payment, BookingStatus: tt.booking}
		assert.Equal(t, tt.expected, DisplayStatus(&o), "%s/%s", tt.payment, tt.booking)
	}
}
