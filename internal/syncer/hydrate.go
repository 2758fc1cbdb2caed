package syncer

import (
	"context"

	"linova-go/internal/cache"
	"linova-go/internal/models"
)

// hydrate fills state from whatever cached values parse. It never touches
// the network and a corrupt entry only leaves its own slice at default.
func (c *Controller) hydrate(ctx context.Context, gen uint64, userID string) {
	var raw map[string][]byte
	if c.store != nil {
		values, err := queuedStore{c: c}.Get(ctx, cache.HydrationKeys(userID))
		if err != nil {
			c.log.Warn("cache read failed, skipping hydration", "error", err)
		} else {
			raw = values
		}
	}

	var (
		modules      []models.Module
		lessonCounts map[string]int
		lessonModule map[string]string
		progressRows map[string]models.LessonProgress
		unlocks      map[string]models.ModuleUnlock
	)
	hasModules := c.decodeCached(raw, cache.ModulesKey, &modules)
	hasCounts := c.decodeCached(raw, cache.LessonCountsKey, &lessonCounts)
	hasIndex := c.decodeCached(raw, cache.LessonModuleKey, &lessonModule)
	hasProgress := c.decodeCached(raw, cache.ProgressKey(userID), &progressRows)
	hasUnlocks := c.decodeCached(raw, cache.UnlocksKey(userID), &unlocks)

	c.commit(gen, func(s *State) {
		if hasModules && modules != nil {
			s.Modules = modules
		}
		if hasCounts && lessonCounts != nil {
			s.LessonCounts = lessonCounts
		}
		if hasIndex && lessonModule != nil {
			s.LessonModule = lessonModule
		}
		if hasProgress {
			s.setProgress(progressRows)
		}
		if hasUnlocks && unlocks != nil {
			s.Unlocks = unlocks
		}
		s.Phase = PhaseHydrated
	})
}

func (c *Controller) decodeCached(raw map[string][]byte, key string, dest any) bool {
	value, ok := raw[key]
	if !ok {
		return false
	}
	if err := cache.Decode(key, value, dest); err != nil {
		c.log.Debug("ignoring unreadable cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// persist writes value under key in the background. Failures are logged.
func (c *Controller) persist(key string, value any) {
	if c.store == nil {
		return
	}
	c.enqueue(func(ctx context.Context) {
		if err := cache.SetJSON(ctx, c.store, key, value); err != nil {
			c.log.Warn("cache write failed", "key", key, "error", err)
		}
	})
}

func (c *Controller) removeKeys(keys []string) {
	if c.store == nil {
		return
	}
	c.enqueue(func(ctx context.Context) {
		if err := c.store.Remove(ctx, keys); err != nil {
			c.log.Warn("cache clear failed", "keys", keys, "error", err)
		}
	})
}

// queuedStore routes writes through the controller's ordered queue so
// removals issued by the profile loader cannot overtake pending writes.
type queuedStore struct {
	c *Controller
}

// Get reads after pending writes and removals have landed.
func (q queuedStore) Get(ctx context.Context, keys []string) (map[string][]byte, error) {
	q.c.settle(ctx)
	return q.c.store.Get(ctx, keys)
}

func (q queuedStore) Set(_ context.Context, key string, value []byte) error {
	q.c.enqueue(func(ctx context.Context) {
		if err := q.c.store.Set(ctx, key, value); err != nil {
			q.c.log.Warn("cache write failed", "key", key, "error", err)
		}
	})
	return nil
}

func (q queuedStore) Remove(_ context.Context, keys []string) error {
	q.c.removeKeys(keys)
	return nil
}
