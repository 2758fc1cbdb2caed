// Package syncer owns the in-memory learning state shared with the rest of
// the app and keeps it consistent with the backend.
package syncer

import (
	"maps"
	"slices"

	"linova-go/internal/models"
	"linova-go/internal/progress"
)

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseAuthReady
	PhaseHydrated
	PhasePreloaded
	PhaseLive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseAuthReady:
		return "auth_ready"
	case PhaseHydrated:
		return "hydrated"
	case PhasePreloaded:
		return "preloaded"
	case PhaseLive:
		return "live"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is a point-in-time copy of everything the controller holds.
type State struct {
	Phase          Phase
	UserID         string
	Email          string
	Name           string
	Level          *string
	SelectedModule *string
	Profile        *models.Profile

	Modules      []models.Module
	LessonCounts map[string]int
	LessonModule map[string]string

	Progress         map[string]models.LessonProgress
	Unlocks          map[string]models.ModuleUnlock
	LessonsCompleted int
	Summary          progress.Summary
}

func emptyState() State {
	return State{
		Modules:      []models.Module{},
		LessonCounts: map[string]int{},
		LessonModule: map[string]string{},
		Progress:     map[string]models.LessonProgress{},
		Unlocks:      map[string]models.ModuleUnlock{},
	}
}

func (s State) clone() State {
	out := s
	out.Level = clonePtr(s.Level)
	out.SelectedModule = clonePtr(s.SelectedModule)
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	out.Modules = slices.Clone(s.Modules)
	out.LessonCounts = maps.Clone(s.LessonCounts)
	out.LessonModule = maps.Clone(s.LessonModule)
	out.Progress = maps.Clone(s.Progress)
	out.Unlocks = maps.Clone(s.Unlocks)
	return out
}

// resetUser drops everything scoped to the signed-in user.
func (s *State) resetUser() {
	s.Progress = map[string]models.LessonProgress{}
	s.Unlocks = map[string]models.ModuleUnlock{}
	s.LessonsCompleted = 0
	s.Summary = progress.Summary{}
}

func (s *State) setProgress(rows map[string]models.LessonProgress) {
	if rows == nil {
		rows = map[string]models.LessonProgress{}
	}
	s.Progress = rows
	s.Summary = progress.Summarize(progress.FromProgress(rows))
	s.LessonsCompleted = s.Summary.Lessons
}

// ModuleUnlocked reports whether the user may open moduleID.
func (s State) ModuleUnlocked(moduleID string) bool {
	u, ok := s.Unlocks[moduleID]
	return ok && u.Unlocked()
}

// ModuleCompleted counts the user's completed lessons in moduleID.
func (s State) ModuleCompleted(moduleID string) (done, total int) {
	total = s.LessonCounts[moduleID]
	for lessonID, row := range s.Progress {
		if s.LessonModule[lessonID] != moduleID {
			continue
		}
		if progress.Summarize([]progress.Entry{progress.EntryOf(row)}).Lessons == 1 {
			done++
		}
	}
	return done, total
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
