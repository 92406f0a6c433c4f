package controllers

import (
	"io"
	"net/http"
	"time"

	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/services"
	"github.com/gin-gonic/gin"
)

// EventsKeepAlive is how often an idle event stream sends a ping
var EventsKeepAlive = 25 * time.Second

// StartConversationRequest represents the request body for contacting a seller
// SellerID may be omitted; it must match the book's seller when given
type StartConversationRequest struct {
	BookID   string `json:"book_id" binding:"required"`
	SellerID string `json:"seller_id"`
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ConversationSummary is one row of the inbox
type ConversationSummary struct {
	ID            string          `json:"id"`
	Book          *models.Book    `json:"book"`
	OtherParty    *models.User    `json:"other_party"`
	LastMessage   *models.Message `json:"last_message"`
	UnreadCount   int             `json:"unread_count"`
	LastMessageAt time.Time       `json:"last_message_at"`
}

func summarize(conv *models.Conversation, userID string) ConversationSummary {
	return ConversationSummary{
		ID:            conv.ID,
		Book:          conv.Book,
		OtherParty:    conv.OtherParty(userID),
		LastMessage:   conv.LastMessage(),
		UnreadCount:   conv.UnreadFor(userID),
		LastMessageAt: conv.LastMessageAt,
	}
}

// ListConversations handles GET /api/v1/conversations - the signed-in user's
// inbox, most recently active first
func ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	convs, err := services.GetMarketplace().Chat.ListConversations(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	id, _ := services.IdentityFrom(ctx)
	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, summarize(conv, id.UserID))
	}
	respondOK(c, http.StatusOK, summaries)
}

// StartConversation handles POST /api/v1/conversations - returns the existing
// conversation about the book or opens a new one
func StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, err := services.GetMarketplace().Chat.StartConversation(c.Request.Context(), req.BookID, req.SellerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, conv)
}

// GetUnreadCount handles GET /api/v1/conversations/unread-count
func GetUnreadCount(c *gin.Context) {
	count, err := services.GetMarketplace().Chat.UnreadCount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"unread_count": count})
}

// GetConversation handles GET /api/v1/conversations/:id - messages oldest first
func GetConversation(c *gin.Context) {
	conv, err := services.GetMarketplace().Chat.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, conv)
}

// SendMessage handles POST /api/v1/conversations/:id/messages
func SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := services.GetMarketplace().Chat.SendMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, msg)
}

// MarkConversationRead handles POST /api/v1/conversations/:id/read
func MarkConversationRead(c *gin.Context) {
	marked, err := services.GetMarketplace().Chat.MarkConversationRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"marked_read": marked})
}

// StreamConversationEvents handles GET /api/v1/conversations/:id/events - a
// server-sent event stream telling the viewer when to re-fetch the
// conversation. It sends "ready" once subscribed, "invalidate" for every new
// message and "ping" while idle. The subscription ends with the request.
func StreamConversationEvents(c *gin.Context) {
	ctx := c.Request.Context()
	m := services.GetMarketplace()

	conv, err := m.Chat.GetConversation(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	id, _ := services.IdentityFrom(ctx)

	watch, err := m.Bridge.Watch(ctx, id.UserID, conv.ID)
	if err != nil {
		abortWithError(c, http.StatusServiceUnavailable, "REALTIME_UNAVAILABLE", err.Error())
		return
	}
	defer watch.Close()

	keepAlive := time.NewTicker(EventsKeepAlive)
	defer keepAlive.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"conversation_id": conv.ID})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-watch.Notify():
			if !ok {
				return false
			}
			c.SSEvent("invalidate", event)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
