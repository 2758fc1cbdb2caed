package progress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"linova-go/internal/models"
)

type fakeTimestamp struct{ t time.Time }

func (f fakeTimestamp) Time() time.Time { return f.t }

func TestSummarizePassingScoreAndIncomplete(t *testing.T) {
	got := Summarize([]Entry{
		{Score: 70, UpdatedAt: "2024-01-01T00:00:00Z"},
		{Completed: false, Score: 40},
	})
	assert.Equal(t, Summary{Days: 1, Lessons: 1, Activities: 1, XP: 10}, got)
}

func TestSummarizeSameDayCountsOnce(t *testing.T) {
	got := Summarize([]Entry{
		{Completed: true, UpdatedAt: "2024-03-01T08:00:00Z"},
		{Completed: true, UpdatedAt: "2024-03-01T20:00:00Z"},
	})
	assert.Equal(t, 1, got.Days)
	assert.Equal(t, 2, got.Lessons)
}

func TestSummarizeLessonsEqualActivities(t *testing.T) {
	cases := [][]Entry{
		nil,
		{{Completed: true}},
		{{Score: "85"}, {Score: 10}, {Completed: "true"}, {Score: math.Inf(1)}},
		{{Score: 99.5, XP: 25}, {Completed: true, XP: math.NaN()}},
	}
	for _, entries := range cases {
		got := Summarize(entries)
		assert.Equal(t, got.Lessons, got.Activities)
	}
}

func TestSummarizeCompletionRules(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		counted bool
	}{
		{"completed true", Entry{Completed: true}, true},
		{"score at threshold", Entry{Score: 70}, true},
		{"numeric string score", Entry{Score: "71"}, true},
		{"score below threshold", Entry{Score: 69.9}, false},
		{"completed string is not true", Entry{Completed: "true", Score: 10}, false},
		{"infinite score", Entry{Score: math.Inf(1)}, false},
		{"garbage score", Entry{Score: "abc"}, false},
		{"absent everything", Entry{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize([]Entry{tt.entry})
			if tt.counted {
				assert.Equal(t, 1, got.Lessons)
			} else {
				assert.Equal(t, 0, got.Lessons)
			}
		})
	}
}

func TestSummarizeXP(t *testing.T) {
	got := Summarize([]Entry{
		{Completed: true, XP: 25},
		{Completed: true, XP: "40"},
		{Completed: true, XP: math.NaN()},
		{Completed: true},
	})
	assert.Equal(t, float64(25+10+10+10), got.XP)
}

func TestSummarizeTimestampShapes(t *testing.T) {
	day := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := Summarize([]Entry{
		{Completed: true, UpdatedAt: day},
		{Completed: true, UpdatedAt: fakeTimestamp{t: day.Add(24 * time.Hour)}},
		{Completed: true, UpdatedAt: day.Add(48 * time.Hour).UnixMilli()},
		{Completed: true, UpdatedAt: "2024-05-04"},
		{Completed: true, UpdatedAt: "not a date"},
		{Completed: true},
	})
	assert.Equal(t, 4, got.Days)
	assert.Equal(t, 6, got.Lessons)
}

func TestSummarizeUsesUTCDay(t *testing.T) {
	got := Summarize([]Entry{
		{Completed: true, UpdatedAt: "2024-03-01T23:30:00-05:00"},
		{Completed: true, UpdatedAt: "2024-03-02T01:00:00Z"},
	})
	assert.Equal(t, 1, got.Days)
}

func TestFromProgressOrderedAndComplete(t *testing.T) {
	score := 80.0
	xp := 15.0
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := map[string]models.LessonProgress{
		"b": {LessonID: "b", Completed: true},
		"a": {LessonID: "a", Score: &score, XP: &xp, UpdatedAt: &at},
	}
	entries := FromProgress(rows)
	assert.Len(t, entries, 2)
	assert.Equal(t, 80.0, entries[0].Score)
	assert.Equal(t, Summary{Days: 1, Lessons: 2, Activities: 2, XP: 25}, Summarize(entries))
	assert.Equal(t, 2, CompletedCount(rows))
}
