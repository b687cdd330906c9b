package reconcile

import (
	"sort"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

// MergeStats counts what a merge discarded.
type MergeStats struct {
	Duplicates   int
	Placeholders int
	Backfilled   int
}

// Merge combines normalized orders from the three sources into one list with
// unique ids, newest first. The slices' positions decide origin, whatever the
// orders' own Origin field says.
func Merge(remote, pending, local []models.Order) []models.Order {
	out, _ := MergeWithStats(remote, pending, local)
	return out
}

// MergeWithStats is Merge plus counters for metrics.
func MergeWithStats(remote, pending, local []models.Order) ([]models.Order, MergeStats) {
	all := make([]models.Order, 0, len(remote)+len(pending)+len(local))
	all = appendWithOrigin(all, remote, models.OriginRemote)
	all = appendWithOrigin(all, pending, models.OriginPending)
	all = appendWithOrigin(all, local, models.OriginLocal)
	return MergeAll(all)
}

func appendWithOrigin(dst, src []models.Order, origin models.Origin) []models.Order {
	for _, o := range src {
		c := o.Clone()
		c.Origin = origin
		dst = append(dst, c)
	}
	return dst
}

// MergeAll deduplicates orders that already carry their Origin. Feeding its
// output back in yields the same output.
//
// Per id, remote beats pending beats local; within one origin the first wins.
// Local placeholders are dropped once any remote order exists. A winner that
// lacks items or a total borrows them from the duplicate it replaced.
func MergeAll(orders []models.Order) ([]models.Order, MergeStats) {
	var stats MergeStats

	hasRemote := false
	for i := range orders {
		if orders[i].Origin == models.OriginRemote {
			hasRemote = true
			break
		}
	}

	index := make(map[string]int, len(orders))
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			continue
		}
		if hasRemote && o.Origin == models.OriginLocal && o.IsPlaceholder() {
			stats.Placeholders++
			continue
		}

		o = o.Clone()
		i, seen := index[o.ID]
		if !seen {
			index[o.ID] = len(out)
			out = append(out, o)
			continue
		}

		stats.Duplicates++
		winner, loser := out[i], o
		if o.Origin.Rank() > out[i].Origin.Rank() {
			winner, loser = o, out[i]
		}
		if backfill(&winner, &loser) {
			stats.Backfilled++
		}
		out[i] = winner
	}

	for i := range out {
		out[i].DisplayStatus = DisplayStatus(&out[i])
	}

	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, stats
}

// backfill copies items and total from loser onto winner where winner has none.
func backfill(winner, loser *models.Order) bool {
	changed := false
	if !winner.HasRealItems() && loser.HasRealItems() {
		winner.Items = loser.Clone().Items
		changed = true
	}
	if winner.TotalMinor == 0 && loser.TotalMinor > 0 {
		winner.TotalMinor = loser.TotalMinor
		changed = true
	}
	if changed {
		resynthesize(winner)
	}
	return changed
}

// resynthesize keeps a synthetic stand-in line in step with the order total.
func resynthesize(o *models.Order) {
	if len(o.Items) == 1 && o.Items[0].Synthetic() {
		o.Items[0].UnitMinor = o.TotalMinor
		o.Items[0].TotalMinor = o.TotalMinor
	}
}

// Enrich copies the last-payment snapshot's total and items onto the remote
// or pending order with the same reference when that order has not received
// them yet. consumed reports whether the snapshot has served its purpose and
// can be discarded: it was applied, or the matching order is already remote.
func Enrich(orders []models.Order, snapshot models.Order) (out []models.Order, consumed bool) {
	out = orders
	for i := range out {
		o := &out[i]
		if o.ID != snapshot.ID {
			continue
		}
		if o.Origin != models.OriginRemote && o.Origin != models.OriginPending {
			continue
		}

		applied := false
		if !o.HasRealItems() && snapshot.HasRealItems() {
			o.Items = snapshot.Clone().Items
			applied = true
		}
		if o.TotalMinor == 0 && snapshot.TotalMinor > 0 {
			o.TotalMinor = snapshot.TotalMinor
			applied = true
		}
		if applied {
			resynthesize(o)
			o.DisplayStatus = DisplayStatus(o)
		}
		return out, applied || o.Origin == models.OriginRemote
	}
	return out, false
}

// IsAuthoritative reports whether orders contain a remote order for ref with
// real line items. It is the final-state predicate for post-payment polling.
func IsAuthoritative(ref string) func([]models.Order) bool {
	return func(orders []models.Order) bool {
		for i := range orders {
			if orders[i].ID == ref && orders[i].Origin == models.OriginRemote {
				return orders[i].HasRealItems()
			}
		}
		return false
	}
}
