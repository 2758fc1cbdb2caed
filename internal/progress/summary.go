// Package progress reduces lesson completion rows into the counters shown
// on the progress screen.
package progress

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"linova-go/internal/models"
)

const (
	// PassingScore is the minimum score that counts a lesson as done even
	// when the completed flag is not set.
	PassingScore = 70
	// DefaultXP is credited for a counted row without a usable xp value.
	DefaultXP = 10
)

type Summary struct {
	Days       int     `json:"days"`
	Lessons    int     `json:"lessons"`
	Activities int     `json:"activities"`
	XP         float64 `json:"xp"`
}

// Entry is a loosely typed completion row. Fields hold whatever the source
// delivered: numbers, numeric strings, times, or nothing.
type Entry struct {
	Score     any
	Completed any
	XP        any
	UpdatedAt any
}

// TimeConverter is satisfied by values that can convert themselves to a time.
type TimeConverter interface {
	Time() time.Time
}

// Summarize counts a row iff completed is exactly true or its score is a
// finite number >= PassingScore. Lessons and Activities are the same count.
func Summarize(entries []Entry) Summary {
	var summary Summary
	days := map[string]struct{}{}
	for _, entry := range entries {
		score := toNumber(entry.Score)
		completed := entry.Completed == true || (isFinite(score) && score >= PassingScore)
		if !completed {
			continue
		}
		summary.Lessons++
		summary.Activities++
		if xp, ok := finiteNumber(entry.XP); ok {
			summary.XP += xp
		} else {
			summary.XP += DefaultXP
		}
		if day, ok := calendarDay(entry.UpdatedAt); ok {
			days[day] = struct{}{}
		}
	}
	summary.Days = len(days)
	return summary
}

// FromProgress converts a lesson-keyed mapping into entries ordered by lesson id.
func FromProgress(rows map[string]models.LessonProgress) []Entry {
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, EntryOf(rows[id]))
	}
	return entries
}

func EntryOf(row models.LessonProgress) Entry {
	entry := Entry{Completed: row.Completed}
	if row.Score != nil {
		entry.Score = *row.Score
	}
	if row.XP != nil {
		entry.XP = *row.XP
	}
	if row.UpdatedAt != nil {
		entry.UpdatedAt = *row.UpdatedAt
	}
	return entry
}

// CompletedCount is the number of counted rows in a lesson-keyed mapping.
func CompletedCount(rows map[string]models.LessonProgress) int {
	return Summarize(FromProgress(rows)).Lessons
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// finiteNumber accepts only numeric values; strings are not coerced.
func finiteNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, isFinite(f)
}

// toNumber coerces v to a float64, returning NaN when it has no numeric reading.
func toNumber(v any) float64 {
	if f, ok := finiteNumber(v); ok {
		return f
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return parsed
	case bool:
		if n {
			return 1
		}
		return 0
	}
	return math.NaN()
}

var dayLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func calendarDay(v any) (string, bool) {
	var t time.Time
	switch value := v.(type) {
	case nil:
		return "", false
	case time.Time:
		t = value
	case *time.Time:
		if value == nil {
			return "", false
		}
		t = *value
	case TimeConverter:
		t = value.Time()
	case string:
		parsed, ok := parseTimestamp(value)
		if !ok {
			return "", false
		}
		t = parsed
	default:
		ms, ok := finiteNumber(v)
		if !ok {
			return "", false
		}
		t = time.UnixMilli(int64(ms))
	}
	if t.IsZero() {
		return "", false
	}
	return t.UTC().Format("2006-01-02"), true
}

func parseTimestamp(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dayLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	if ms, err := strconv.ParseFloat(value, 64); err == nil && isFinite(ms) {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}
