package services

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"linova-go/internal/models"
)

const (
	UserStatusActive = "active"

	uniqueViolation = "23505"
)

const userColumns = `id, email, password_hash, name, full_name, status, created_at, updated_at, last_login_at`

// NormalizeEmail is the canonical form used for lookups.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// CreateAccount inserts the user and an empty profile row in one
// transaction.
func CreateAccount(db *sqlx.DB, email, passwordHash string, name, fullName *string) (models.User, error) {
	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Name:         name,
		FullName:     fullName,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := db.Beginx()
	if err != nil {
		return models.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
INSERT INTO users (id, email, password_hash, name, full_name, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
`, user.ID, user.Email, user.PasswordHash, user.Name, user.FullName, user.Status, now)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrConflict("User already exists")
		}
		return models.User{}, WrapError(err, "insert user")
	}
	_, err = tx.Exec(`INSERT INTO profiles (id, name, updated_at) VALUES ($1,$2,$3)`, user.ID, name, now)
	if err != nil {
		return models.User{}, WrapError(err, "insert profile")
	}
	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func FindUserByEmail(db *sqlx.DB, email string) (models.User, error) {
	var user models.User
	err := db.Get(&user, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound("User not found")
	}
	return user, err
}

func GetUser(db *sqlx.DB, userID string) (models.User, error) {
	var user models.User
	err := db.Get(&user, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound("User not found")
	}
	return user, err
}

func SetLastLogin(db *sqlx.DB, userID string) error {
	_, err := db.Exec(`UPDATE users SET last_login_at = $1 WHERE id = $2`, time.Now().UTC(), userID)
	return err
}

// AccountUpdate carries the optional fields of PUT /auth/v1/user.
type AccountUpdate struct {
	Name         *string
	FullName     *string
	PasswordHash *string
}

func UpdateAccount(db *sqlx.DB, userID string, update AccountUpdate) (models.User, error) {
	res, err := db.Exec(`
UPDATE users
SET name = COALESCE($2, name),
    full_name = COALESCE($3, full_name),
    password_hash = COALESCE($4, password_hash),
    updated_at = $5
WHERE id = $1
`, userID, update.Name, update.FullName, update.PasswordHash, time.Now().UTC())
	if err != nil {
		return models.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.User{}, ErrNotFound("User not found")
	}
	return GetUser(db, userID)
}

// DeleteAccount removes the user; owned rows go with it through cascades.
func DeleteAccount(db *sqlx.DB, userID string) error {
	res, err := db.Exec(`DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound("User not found")
	}
	return nil
}

func CreateRecoveryCode(db *sqlx.DB, userID, codeHash string, ttl time.Duration) (models.RecoveryCode, error) {
	now := time.Now().UTC()
	code := models.RecoveryCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  codeHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	_, err := db.Exec(`
INSERT INTO recovery_codes (id, user_id, code_hash, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5)
`, code.ID, code.UserID, code.CodeHash, code.ExpiresAt, code.CreatedAt)
	return code, err
}

// ConsumeRecoveryCode marks an unexpired code as used and returns its
// owner. A code can be consumed once.
func ConsumeRecoveryCode(db *sqlx.DB, codeHash string) (string, error) {
	var userID string
	err := db.Get(&userID, `
UPDATE recovery_codes
SET consumed_at = $2
WHERE code_hash = $1 AND consumed_at IS NULL AND expires_at > $2
RETURNING user_id
`, codeHash, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnauthorized("Invalid or expired code")
	}
	return userID, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
