// Package models holds the gorm models persisted by the marketplace.
package models

import "github.com/google/uuid"

// UnknownSellerName is shown when a listing's seller profile is missing.
const UnknownSellerName = "Unknown Seller"

// All returns every model in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Book{},
		&CartItem{},
		&WishlistItem{},
		&Conversation{},
		&Message{},
	}
}

func ensureID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
