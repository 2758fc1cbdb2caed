package syncer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"linova-go/internal/cache"
	"linova-go/internal/models"
	"linova-go/internal/remote"
)

const (
	modulesTable  = "modules"
	lessonsTable  = "lessons"
	progressTable = "lesson_progress"
	unlocksTable  = "module_unlocks"
	profilesTable = "profiles"
)

var (
	moduleColumns   = []string{"id", "title", "description", "level", "order"}
	lessonColumns   = []string{"id", "module_id"}
	progressColumns = []string{"user_id", "lesson_id", "score", "completed", "xp", "watched", "updated_at", "answers"}
	unlockColumns   = []string{"user_id", "module_id", "passed", "status", "score", "correct_count", "total_count", "reason", "unlocked_at"}
)

// preload issues the four catalog and user queries concurrently. Each one
// commits on its own; a failed query leaves its slice as hydrated.
func (c *Controller) preload(ctx context.Context, gen uint64, userID string) {
	c.mu.Lock()
	ready := gen == c.generation && c.state.Phase == PhaseHydrated
	c.mu.Unlock()
	if !ready {
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		modules, err := c.fetchModules(ctx)
		if err != nil {
			c.log.Warn("preload modules failed", "error", err)
			return nil
		}
		if c.commit(gen, func(s *State) { s.Modules = modules }) {
			c.persist(cache.ModulesKey, modules)
		}
		return nil
	})
	g.Go(func() error {
		index, counts, err := c.fetchLessonIndex(ctx)
		if err != nil {
			c.log.Warn("preload lessons failed", "error", err)
			return nil
		}
		if c.commit(gen, func(s *State) {
			s.LessonModule = index
			s.LessonCounts = counts
		}) {
			c.persist(cache.LessonModuleKey, index)
			c.persist(cache.LessonCountsKey, counts)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := c.fetchProgress(ctx, userID)
		if err != nil {
			c.log.Warn("preload lesson progress failed", "user_id", userID, "error", err)
			return nil
		}
		if c.commit(gen, func(s *State) { s.setProgress(rows) }) {
			c.persist(cache.ProgressKey(userID), rows)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := c.fetchUnlocks(ctx, userID)
		if err != nil {
			c.log.Warn("preload module unlocks failed", "user_id", userID, "error", err)
			return nil
		}
		if c.commit(gen, func(s *State) { s.Unlocks = rows }) {
			c.persist(cache.UnlocksKey(userID), rows)
		}
		return nil
	})
	_ = g.Wait()

	c.commit(gen, func(s *State) { s.Phase = PhasePreloaded })
}

// moduleRow tolerates rows with missing fields.
type moduleRow struct {
	ID          string   `json:"id"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Level       *string  `json:"level"`
	Order       *float64 `json:"order"`
}

func (c *Controller) fetchModules(ctx context.Context) ([]models.Module, error) {
	var rows []moduleRow
	q := remote.Query{Table: modulesTable, Columns: moduleColumns, Order: &remote.Order{Column: "order", Ascending: true}}
	if err := c.gateway.Select(ctx, q, &rows); err != nil {
		return nil, err
	}
	return normalizeModules(rows), nil
}

// normalizeModules fills defaults: a placeholder title from the position,
// a nil level and the position as order.
func normalizeModules(rows []moduleRow) []models.Module {
	modules := make([]models.Module, 0, len(rows))
	for i, row := range rows {
		m := models.Module{ID: row.ID, Order: i}
		if row.Title != nil && strings.TrimSpace(*row.Title) != "" {
			m.Title = *row.Title
		} else {
			m.Title = fmt.Sprintf("Module %d", i+1)
		}
		if row.Description != nil {
			m.Description = *row.Description
		}
		if row.Level != nil && strings.TrimSpace(*row.Level) != "" {
			level := *row.Level
			m.Level = &level
		}
		if row.Order != nil {
			m.Order = int(*row.Order)
		}
		modules = append(modules, m)
	}
	return modules
}

// fetchLessonIndex maps each lesson to its module and counts lessons per
// module in one pass.
func (c *Controller) fetchLessonIndex(ctx context.Context) (map[string]string, map[string]int, error) {
	var rows []models.Lesson
	if err := c.gateway.Select(ctx, remote.Query{Table: lessonsTable, Columns: lessonColumns}, &rows); err != nil {
		return nil, nil, err
	}
	index := make(map[string]string, len(rows))
	counts := map[string]int{}
	for _, row := range rows {
		if row.ID == "" || row.ModuleID == "" {
			continue
		}
		index[row.ID] = row.ModuleID
		counts[row.ModuleID]++
	}
	return index, counts, nil
}

func (c *Controller) fetchProgress(ctx context.Context, userID string) (map[string]models.LessonProgress, error) {
	out := map[string]models.LessonProgress{}
	if userID == "" {
		return out, nil
	}
	var rows []models.LessonProgress
	q := remote.Query{Table: progressTable, Columns: progressColumns, Filters: []remote.Filter{remote.Eq("user_id", userID)}}
	if err := c.gateway.Select(ctx, q, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.LessonID != "" {
			out[row.LessonID] = row
		}
	}
	return out, nil
}

func (c *Controller) fetchUnlocks(ctx context.Context, userID string) (map[string]models.ModuleUnlock, error) {
	out := map[string]models.ModuleUnlock{}
	if userID == "" {
		return out, nil
	}
	var rows []models.ModuleUnlock
	q := remote.Query{Table: unlocksTable, Columns: unlockColumns, Filters: []remote.Filter{remote.Eq("user_id", userID)}}
	if err := c.gateway.Select(ctx, q, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ModuleID != "" {
			out[row.ModuleID] = row
		}
	}
	return out, nil
}
