package syncer

import (
	"context"

	"linova-go/internal/cache"
	"linova-go/internal/remote"
)

// subscribe opens the two per-user change feeds. Every event triggers a
// full re-fetch of the affected table; nothing is patched incrementally.
func (c *Controller) subscribe(ctx context.Context, gen uint64, userID string) {
	if userID == "" {
		c.commit(gen, func(s *State) { s.Phase = PhaseLive })
		return
	}
	filter := remote.Eq("user_id", userID).String()

	var subs []remote.Subscription
	progressSub, err := c.gateway.Subscribe(ctx, progressTable, filter, func(remote.ChangeEvent) {
		c.refreshProgress(ctx, gen, userID)
	})
	if err != nil {
		c.log.Warn("lesson progress subscription failed", "user_id", userID, "error", err)
	} else {
		subs = append(subs, progressSub)
	}
	unlockSub, err := c.gateway.Subscribe(ctx, unlocksTable, filter, func(remote.ChangeEvent) {
		c.refreshUnlocks(ctx, gen, userID)
	})
	if err != nil {
		c.log.Warn("module unlock subscription failed", "user_id", userID, "error", err)
	} else {
		subs = append(subs, unlockSub)
	}

	applied := c.commit(gen, func(s *State) {
		c.subs = subs
		s.Phase = PhaseLive
	})
	if !applied {
		closeAll(c.log, subs)
	}
}

func (c *Controller) refreshProgress(ctx context.Context, gen uint64, userID string) {
	rows, err := c.fetchProgress(ctx, userID)
	if err != nil {
		c.log.Warn("lesson progress refresh failed", "user_id", userID, "error", err)
		return
	}
	if c.commit(gen, func(s *State) { s.setProgress(rows) }) {
		c.persist(cache.ProgressKey(userID), rows)
	}
}

func (c *Controller) refreshUnlocks(ctx context.Context, gen uint64, userID string) {
	rows, err := c.fetchUnlocks(ctx, userID)
	if err != nil {
		c.log.Warn("module unlock refresh failed", "user_id", userID, "error", err)
		return
	}
	if c.commit(gen, func(s *State) { s.Unlocks = rows }) {
		c.persist(cache.UnlocksKey(userID), rows)
	}
}
