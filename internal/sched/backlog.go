package sched

import "feedmill/internal/model"

// Backlog is the point-in-time sum of unfinished work per production line,
// in bags. It has no identity beyond the scheduling call that produced it.
type Backlog struct {
	PelletBags    int `json:"pelletBags"`
	NonPelletBags int `json:"nonPelletBags"`
}

// BacklogFromOrders sums line-item bag quantities across every order not yet
// in a terminal status. Iteration order is irrelevant; callers are responsible
// for passing a single consistent read of the open orders.
func BacklogFromOrders(orders []model.Order) Backlog {
	var b Backlog
	for _, o := range orders {
		if model.IsTerminalStatus(o.Status) {
			continue
		}
		for _, it := range o.Items {
			if it.Pelletized {
				b.PelletBags += it.QtyBags
			} else {
				b.NonPelletBags += it.QtyBags
			}
		}
	}
	return b
}
