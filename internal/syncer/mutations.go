package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"

	"linova-go/internal/apperr"
	"linova-go/internal/cache"
	"linova-go/internal/models"
)

var errNotSignedIn = errors.New("not signed in")

// ProfileUpdate holds the profile fields to change; nil fields are kept.
type ProfileUpdate struct {
	Name  *string
	Level *string
}

type LessonResult struct {
	LessonID  string
	Score     *float64
	Completed bool
	XP        *float64
	Watched   bool
	Answers   json.RawMessage
}

type AssessmentResult struct {
	ModuleID     string
	Passed       bool
	Score        *float64
	CorrectCount *int
	TotalCount   *int
	Reason       *string
}

func (c *Controller) signedIn(op string) (uint64, string, error) {
	gen, userID, err := c.current()
	if err != nil {
		return 0, "", err
	}
	if userID == "" {
		return 0, "", apperr.Auth(op, errNotSignedIn)
	}
	return gen, userID, nil
}

// SaveProfile writes the profile fields and adopts the stored row.
func (c *Controller) SaveProfile(ctx context.Context, update ProfileUpdate) error {
	gen, userID, err := c.signedIn("save profile")
	if err != nil {
		return err
	}
	row := models.Profile{ID: userID, Name: trimmed(update.Name), Level: trimmed(update.Level)}
	saved, err := c.upsertProfile(ctx, row)
	if err != nil {
		return err
	}
	c.commit(gen, func(s *State) {
		s.Profile = saved
		if saved.Name != nil && *saved.Name != "" {
			s.Name = *saved.Name
		}
		if saved.Level != nil {
			s.Level = clonePtr(saved.Level)
		}
	})
	return nil
}

// SelectModule records moduleID as the user's current module.
func (c *Controller) SelectModule(ctx context.Context, moduleID string) error {
	gen, userID, err := c.signedIn("select module")
	if err != nil {
		return err
	}
	moduleID = strings.TrimSpace(moduleID)
	if moduleID == "" {
		return apperr.New(apperr.KindUnknown, "select module", errors.New("module id is required"))
	}
	saved, err := c.upsertProfile(ctx, models.Profile{ID: userID, CurrentModule: &moduleID})
	if err != nil {
		return err
	}
	c.commit(gen, func(s *State) {
		s.Profile = saved
		s.SelectedModule = &moduleID
	})
	return nil
}

// SubmitLesson stores one lesson result and recomputes the summary. The
// realtime feed later replaces the mapping with the server's view.
func (c *Controller) SubmitLesson(ctx context.Context, result LessonResult) error {
	gen, userID, err := c.signedIn("submit lesson")
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.LessonID) == "" {
		return apperr.New(apperr.KindUnknown, "submit lesson", errors.New("lesson id is required"))
	}
	now := c.now().UTC()
	row := models.LessonProgress{
		UserID:    userID,
		LessonID:  result.LessonID,
		Score:     result.Score,
		Completed: result.Completed,
		XP:        result.XP,
		Watched:   result.Watched,
		UpdatedAt: &now,
		Answers:   result.Answers,
	}
	var stored []models.LessonProgress
	if err := c.gateway.Upsert(ctx, progressTable, row, &stored); err != nil {
		return err
	}
	if len(stored) > 0 {
		row = stored[0]
	}

	var rows map[string]models.LessonProgress
	if c.commit(gen, func(s *State) {
		rows = maps.Clone(s.Progress)
		if rows == nil {
			rows = map[string]models.LessonProgress{}
		}
		rows[row.LessonID] = row
		s.setProgress(rows)
	}) {
		c.persist(cache.ProgressKey(userID), rows)
	}
	return nil
}

// RecordAssessment stores a module assessment outcome. Passing unlocks the
// module and makes it the current one.
func (c *Controller) RecordAssessment(ctx context.Context, result AssessmentResult) error {
	gen, userID, err := c.signedIn("record assessment")
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.ModuleID) == "" {
		return apperr.New(apperr.KindUnknown, "record assessment", errors.New("module id is required"))
	}
	row := models.ModuleUnlock{
		UserID:       userID,
		ModuleID:     result.ModuleID,
		Passed:       result.Passed,
		Status:       "locked",
		Score:        result.Score,
		CorrectCount: result.CorrectCount,
		TotalCount:   result.TotalCount,
		Reason:       result.Reason,
	}
	if result.Passed {
		now := c.now().UTC()
		row.Status = models.UnlockStatusUnlocked
		row.UnlockedAt = &now
	}
	var stored []models.ModuleUnlock
	if err := c.gateway.Upsert(ctx, unlocksTable, row, &stored); err != nil {
		return err
	}
	if len(stored) > 0 {
		row = stored[0]
	}

	var rows map[string]models.ModuleUnlock
	if c.commit(gen, func(s *State) {
		rows = maps.Clone(s.Unlocks)
		if rows == nil {
			rows = map[string]models.ModuleUnlock{}
		}
		rows[row.ModuleID] = row
		s.Unlocks = rows
	}) {
		c.persist(cache.UnlocksKey(userID), rows)
	}
	if result.Passed {
		return c.SelectModule(ctx, result.ModuleID)
	}
	return nil
}

func (c *Controller) upsertProfile(ctx context.Context, row models.Profile) (*models.Profile, error) {
	var stored []models.Profile
	if err := c.gateway.Upsert(ctx, profilesTable, row, &stored); err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return &stored[0], nil
	}
	return &row, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
