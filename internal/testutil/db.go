// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"bookswap/internal/database"
	"bookswap/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB returns a migrated sqlite database in a temp directory.
// A single connection keeps concurrent writers serialized the way a
// row lock would on PostgreSQL.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "bookswap.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateUser inserts a member with a unique username derived from name.
func CreateUser(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		Username: name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "not-a-real-hash",
		FullName: name,
		Location: "Lisbon",
		About:    models.DefaultAbout,
		Role:     models.RoleUser,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateBook inserts an available swap listing owned by ownerID.
func CreateBook(t testing.TB, db *gorm.DB, ownerID uint, title string) *models.Book {
	t.Helper()
	b := &models.Book{
		Title:       title,
		Author:      "Test Author",
		Genre:       "Fiction",
		Condition:   models.ConditionGood,
		Description: "A copy in good shape",
		Language:    models.DefaultLanguage,
		ListingType: models.ListingSwap,
		OwnerID:     ownerID,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	buf := bytes.NewBuffer(nil)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}
