package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, pgUniqueViolation) {
		return true
	}

	msg := err.Error()
	// MySQL (error code 1062)
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	// SQLite (error code 2067)
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	return strings.Contains(msg, "duplicate key value violates unique constraint")
}

// IsLockTimeoutErr reports whether err is a postgres lock_not_available failure.
func IsLockTimeoutErr(err error) bool {
	return hasPGCode(err, pgLockNotAvailable)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
