package game

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper periodically evicts rooms that have seen no traffic for longer
// than the TTL, reclaiming sessions whose players walked away without
// disconnecting cleanly.
type Reaper struct {
	store    *Store
	interval time.Duration
	ttl      time.Duration
}

func NewReaper(store *Store, interval, ttl time.Duration) *Reaper {
	return &Reaper{store: store, interval: interval, ttl: ttl}
}

// Run sweeps on a ticker until the context is cancelled.
func (rp *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(rp.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			rp.Sweep(now)
		}
	}
}

// Sweep deletes rooms idle past the TTL and returns how many it evicted.
func (rp *Reaper) Sweep(now time.Time) int {
	evicted := 0
	for _, r := range rp.store.Rooms() {
		if now.Sub(r.LastActivity()) > rp.ttl {
			rp.store.Delete(r.Code)
			evicted++
			log.Info().Str("code", r.Code).Msg("evicted idle room")
		}
	}
	return evicted
}
