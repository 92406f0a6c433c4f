package models

import (
	"time"

	"gorm.io/gorm"
)

// WishlistItem marks a book as saved by a user. Presence only.
type WishlistItem struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_wishlist_user_book" json:"user_id"`
	BookID    string    `gorm:"size:36;not null;uniqueIndex:idx_wishlist_user_book;index" json:"book_id"`
	Book      *Book     `gorm:"foreignKey:BookID" json:"book,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the WishlistItem model
func (WishlistItem) TableName() string {
	return "wishlist_items"
}

func (w *WishlistItem) BeforeCreate(tx *gorm.DB) error {
	w.ID = ensureID(w.ID)
	return nil
}
