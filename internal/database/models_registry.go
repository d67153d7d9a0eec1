package database

import "bookswap/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Book{},
		&models.WishlistItem{},
		&models.SwapRequest{},
		&models.Message{},
		&models.Rating{},
	}
}
