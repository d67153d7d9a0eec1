package repository

import (
	"errors"
	"fmt"
	"testing"

	"bookswap/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueConstraintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"translated", gorm.ErrDuplicatedKey, true},
		{"postgres", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"postgres fk", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite", errors.New("UNIQUE constraint failed: users.email"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueConstraintError(tt.err))
		})
	}
}

func TestNotFoundOr(t *testing.T) {
	err := notFoundOr(gorm.ErrRecordNotFound, "Book not found")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.EqualError(t, err, "Book not found")

	assert.True(t, models.IsCode(notFoundOr(errors.New("boom"), "x"), models.CodeInternal))
}
