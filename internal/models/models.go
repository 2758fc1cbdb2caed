package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Name         *string    `db:"name"`
	FullName     *string    `db:"full_name"`
	Status       string     `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
}

// Profile is the per-user row read by the app after every session change.
type Profile struct {
	ID            string     `db:"id" json:"id"`
	Name          *string    `db:"name" json:"name,omitempty"`
	Level         *string    `db:"level" json:"level,omitempty"`
	CurrentModule *string    `db:"current_module" json:"current_module,omitempty"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

type Module struct {
	ID          string  `db:"id" json:"id"`
	Title       string  `db:"title" json:"title"`
	Description string  `db:"description" json:"description"`
	Level       *string `db:"level" json:"level"`
	Order       int     `db:"order" json:"order"`
}

type Lesson struct {
	ID       string `db:"id" json:"id"`
	ModuleID string `db:"module_id" json:"module_id"`
	Title    string `db:"title" json:"title,omitempty"`
	Order    int    `db:"order" json:"order,omitempty"`
}

// LessonProgress is one user's completion state for one lesson.
type LessonProgress struct {
	UserID    string          `db:"user_id" json:"user_id"`
	LessonID  string          `db:"lesson_id" json:"lesson_id"`
	Score     *float64        `db:"score" json:"score"`
	Completed bool            `db:"completed" json:"completed"`
	XP        *float64        `db:"xp" json:"xp"`
	Watched   bool            `db:"watched" json:"watched"`
	UpdatedAt *time.Time      `db:"updated_at" json:"updated_at"`
	Answers   json.RawMessage `db:"answers" json:"answers,omitempty"`
}

const UnlockStatusUnlocked = "unlocked"

// ModuleUnlock gates access to a module's lessons for one user.
type ModuleUnlock struct {
	UserID       string     `db:"user_id" json:"user_id"`
	ModuleID     string     `db:"module_id" json:"module_id"`
	Passed       bool       `db:"passed" json:"passed"`
	Status       string     `db:"status" json:"status"`
	Score        *float64   `db:"score" json:"score"`
	CorrectCount *int       `db:"correct_count" json:"correct_count"`
	TotalCount   *int       `db:"total_count" json:"total_count"`
	Reason       *string    `db:"reason" json:"reason"`
	UnlockedAt   *time.Time `db:"unlocked_at" json:"unlocked_at"`
}

func (u ModuleUnlock) Unlocked() bool {
	return u.Status == UnlockStatusUnlocked
}

type RecoveryCode struct {
	ID         string     `db:"id"`
	UserID     string     `db:"user_id"`
	CodeHash   string     `db:"code_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
	CreatedAt  time.Time  `db:"created_at"`
}
