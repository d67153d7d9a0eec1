// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"strings"

	"bookswap/internal/database"
	"bookswap/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sqlstateUniqueViolation is the postgres code for a duplicate key.
const sqlstateUniqueViolation = "23505"

// readDB prefers the read replica when one is configured.
func readDB(primary *gorm.DB) *gorm.DB {
	if replica := database.ReadReplica(); replica != nil {
		return replica
	}
	return primary
}

// notFoundOr turns a missing row into NotFound(msg); any other failure is Internal.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(msg)
	}
	return models.NewInternalError(err)
}

func isUniqueConstraintError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateUniqueViolation
	}
	// sqlite reports "UNIQUE constraint failed: <table>.<col>"
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// lockForUpdate adds FOR UPDATE on postgres. sqlite already serializes writers.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != "postgres" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}
