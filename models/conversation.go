package models

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

// Conversation is the message thread between a buyer and a seller about one
// book. At most one exists per (book, buyer).
type Conversation struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	BookID        string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_book_buyer" json:"book_id"`
	Book          *Book     `gorm:"foreignKey:BookID" json:"book"`
	BuyerID       string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_book_buyer;index" json:"buyer_id"`
	Buyer         *User     `gorm:"foreignKey:BuyerID" json:"buyer"`
	SellerID      string    `gorm:"size:36;not null;index" json:"seller_id"`
	Seller        *User     `gorm:"foreignKey:SellerID" json:"seller"`
	LastMessageAt time.Time `gorm:"not null;index" json:"last_message_at"`
	Messages      []Message `gorm:"foreignKey:ConversationID" json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for the Conversation model
func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	c.ID = ensureID(c.ID)
	return nil
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.BuyerID == userID || c.SellerID == userID)
}

// OtherParty returns the counterpart of userID: the seller when userID is the
// buyer, the buyer otherwise.
func (c *Conversation) OtherParty(userID string) *User {
	if c.BuyerID == userID {
		return c.Seller
	}
	return c.Buyer
}

// SortMessages orders messages by creation time, oldest first. Ties keep a
// stable order by id.
func (c *Conversation) SortMessages() {
	sort.SliceStable(c.Messages, func(i, j int) bool {
		a, b := c.Messages[i], c.Messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// LastMessage returns the newest message, or nil for an empty thread.
// Messages must already be sorted.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// UnreadFor counts messages userID has not read: unread and sent by someone else.
func (c *Conversation) UnreadFor(userID string) int {
	count := 0
	for _, msg := range c.Messages {
		if !msg.IsRead && msg.SenderID != userID {
			count++
		}
	}
	return count
}
