package models

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// Condition is the physical condition a seller declares for a book.
type Condition string

const (
	ConditionNew        Condition = "New"
	ConditionLikeNew    Condition = "Like New"
	ConditionGood       Condition = "Good"
	ConditionAcceptable Condition = "Acceptable"
)

// Conditions lists every accepted condition, best first.
var Conditions = []Condition{ConditionNew, ConditionLikeNew, ConditionGood, ConditionAcceptable}

// Valid reports whether c is one of the accepted conditions.
func (c Condition) Valid() bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// Book is a used-book listing
type Book struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	Title         string         `gorm:"not null" json:"title"`
	Author        string         `gorm:"not null" json:"author"`
	ISBN          *string        `gorm:"size:32" json:"isbn,omitempty"`
	Price         float64        `gorm:"not null;check:price >= 0" json:"price"`
	OriginalPrice *float64       `json:"original_price"`
	Condition     Condition      `gorm:"size:20;not null" json:"condition"`
	Category      string         `gorm:"not null;index" json:"category"`
	Description   string         `gorm:"type:text" json:"description"`
	CoverImageKey *string        `json:"cover_image_key"`                    // nullable, S3 key for the cover
	CoverImageURL *string        `gorm:"-" json:"cover_image_url,omitempty"` // computed, presigned URL
	SellerID      string         `gorm:"size:36;not null;index" json:"seller_id"`
	Seller        *User          `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
	SellerName    string         `gorm:"-" json:"seller_name"`
	DiscountPct   *int           `gorm:"-" json:"discount,omitempty"`
	IsSold        bool           `gorm:"not null;default:false;index" json:"is_sold"`
	IsFeatured    bool           `gorm:"not null;default:false" json:"is_featured"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Book model
func (Book) TableName() string {
	return "books"
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	b.ID = ensureID(b.ID)
	return nil
}

// Decorate fills the computed response fields.
func (b *Book) Decorate() {
	b.SellerName = b.Seller.DisplayName()
	b.DiscountPct = b.Discount()
}

// Discount returns the percentage saved against the original price, or nil
// when there is no original price above the asking price.
func (b *Book) Discount() *int {
	if b.OriginalPrice == nil || *b.OriginalPrice <= 0 || *b.OriginalPrice <= b.Price {
		return nil
	}
	pct := int(math.Round((*b.OriginalPrice - b.Price) / *b.OriginalPrice * 100))
	return &pct
}
