package models

import (
	"time"

	"gorm.io/gorm"
)

// CartItem is a buyer's pending purchase of a book.
// At most one row exists per (user, book).
type CartItem struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_cart_user_book" json:"user_id"`
	BookID    string    `gorm:"size:36;not null;uniqueIndex:idx_cart_user_book;index" json:"book_id"`
	Book      *Book     `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Quantity  int       `gorm:"not null;check:quantity > 0" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the CartItem model
func (CartItem) TableName() string {
	return "cart_items"
}

func (c *CartItem) BeforeCreate(tx *gorm.DB) error {
	c.ID = ensureID(c.ID)
	return nil
}

// LineTotal is the item's price times its quantity. Items whose book is no
// longer available count as zero.
func (c *CartItem) LineTotal() float64 {
	if c.Book == nil {
		return 0
	}
	return c.Book.Price * float64(c.Quantity)
}
