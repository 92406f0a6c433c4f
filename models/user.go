package models

import (
	"time"

	"gorm.io/gorm"
)

// User mirrors the identity provider's profile for a signed-in account.
// Rows are written only from the provider's userinfo response.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Auth0ID   string    `gorm:"uniqueIndex;not null" json:"-"` // Auth0 user ID (from 'sub' claim)
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"index;not null" json:"email"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.ID = ensureID(u.ID)
	return nil
}

// DisplayName falls back to a placeholder for profiles without a name.
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return UnknownSellerName
	}
	return u.Name
}
