package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChatService runs buyer/seller conversations.
type ChatService struct {
	db        *gorm.DB
	cache     *cache.Cache
	publisher realtime.Publisher
	images    ImageService
	log       *zap.Logger
	now       func() time.Time
}

func NewChatService(deps Deps) *ChatService {
	return &ChatService{
		db:        deps.DB,
		cache:     deps.Cache,
		publisher: deps.Broker,
		images:    deps.Images,
		log:       deps.Logger.Named("chat"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartConversation returns the signed-in buyer's conversation about bookID,
// creating it on first contact. An empty sellerID means the book's seller.
func (s *ChatService) StartConversation(ctx context.Context, bookID, sellerID string) (*models.Conversation, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if sellerID == id.UserID {
		return nil, invalidOperation("you cannot start a conversation about your own listing")
	}

	db := s.db.WithContext(ctx)
	var book models.Book
	if err := db.Select("id", "seller_id").First(&book, "id = ?", bookID).Error; err != nil {
		return nil, lookupError(err, "book")
	}
	switch {
	case sellerID == "":
		sellerID = book.SellerID
	case sellerID != book.SellerID:
		return nil, validation("seller_id does not match the listing's seller")
	}
	if sellerID == id.UserID {
		return nil, invalidOperation("you cannot start a conversation about your own listing")
	}

	existing, err := s.findByBookAndBuyer(ctx, bookID, id.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, backend(err)
	}

	conv := models.Conversation{
		BookID:        bookID,
		BuyerID:       id.UserID,
		SellerID:      sellerID,
		LastMessageAt: s.now(),
	}
	if err := db.Create(&conv).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, backend(err)
		}
		// A concurrent first contact created it.
		existing, err := s.findByBookAndBuyer(ctx, bookID, id.UserID)
		if err != nil {
			return nil, backend(err)
		}
		return existing, nil
	}
	s.cache.InvalidateFamily(cache.FamilyConversations)

	s.log.Info("conversation started",
		zap.String("conversation_id", conv.ID), zap.String("book_id", bookID), zap.String("buyer_id", id.UserID))
	return s.load(ctx, conv.ID)
}

func (s *ChatService) findByBookAndBuyer(ctx context.Context, bookID, buyerID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Select("id").
		First(&conv, "book_id = ? AND buyer_id = ?", bookID, buyerID).Error
	if err != nil {
		return nil, err
	}
	return s.load(ctx, conv.ID)
}

// SendMessage appends content to a conversation the signed-in user takes
// part in and notifies subscribers of the conversation.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validation("message content must not be empty")
	}
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var conv models.Conversation
	if err := db.First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, lookupError(err, "conversation")
	}
	if !conv.HasParticipant(id.UserID) {
		return nil, forbidden("you are not part of this conversation")
	}

	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       id.UserID,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, backend(err)
	}

	// Not transactional with the insert: a stale last activity is tolerated.
	err = db.Model(&models.Conversation{}).Where("id = ?", conversationID).
		Update("last_message_at", msg.CreatedAt).Error
	if err != nil {
		s.log.Warn("last_message_at not updated",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	s.cache.Invalidate(cache.ConversationKey(conversationID))
	s.cache.InvalidateFamily(cache.FamilyConversations)
	s.publish(ctx, msg)
	return &msg, nil
}

func (s *ChatService) publish(ctx context.Context, msg models.Message) {
	if s.publisher == nil {
		return
	}
	event := realtime.MessageInserted(msg.ID, msg.ConversationID, msg.SenderID, msg.CreatedAt)
	// The sender's request may end before subscribers are reached.
	ctx = context.WithoutCancel(ctx)
	if err := s.publisher.Publish(ctx, realtime.MessagesTopic(msg.ConversationID), event); err != nil {
		s.log.Warn("message event not published",
			zap.String("conversation_id", msg.ConversationID), zap.Error(err))
	}
}

// GetConversation returns one conversation with its book, both parties and
// every message oldest first.
func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := cache.Fetch(ctx, s.cache, cache.ConversationKey(conversationID), func(ctx context.Context) (*models.Conversation, error) {
		conv, err := s.load(ctx, conversationID)
		if err != nil {
			return nil, lookupError(err, "conversation")
		}
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(id.UserID) {
		return nil, forbidden("you are not part of this conversation")
	}
	return conv, nil
}

// ListConversations returns every conversation the signed-in user takes
// part in, most recently active first.
func (s *ChatService) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.cache, cache.ConversationsKey(id.UserID), func(ctx context.Context) ([]*models.Conversation, error) {
		var convs []*models.Conversation
		err := s.preloaded(ctx).
			Where("buyer_id = ? OR seller_id = ?", id.UserID, id.UserID).
			Order("last_message_at DESC").
			Find(&convs).Error
		if err != nil {
			return nil, backend(err)
		}
		s.finish(ctx, convs...)
		return convs, nil
	})
}

// UnreadCount counts messages addressed to the signed-in user that are
// still unread, across all conversations.
func (s *ChatService) UnreadCount(ctx context.Context) (int, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return 0, err
	}
	convs, err := s.ListConversations(ctx)
	if err != nil {
		return 0, err
	}
	return CountUnread(convs, id.UserID), nil
}

// CountUnread counts unread messages not sent by userID.
func CountUnread(convs []*models.Conversation, userID string) int {
	total := 0
	for _, conv := range convs {
		total += conv.UnreadFor(userID)
	}
	return total
}

// MarkConversationRead marks every message the other party sent as read and
// returns how many changed.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID string) (int64, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return 0, err
	}

	db := s.db.WithContext(ctx)
	var conv models.Conversation
	if err := db.First(&conv, "id = ?", conversationID).Error; err != nil {
		return 0, lookupError(err, "conversation")
	}
	if !conv.HasParticipant(id.UserID) {
		return 0, forbidden("you are not part of this conversation")
	}

	res := db.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, id.UserID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, backend(res.Error)
	}
	if res.RowsAffected > 0 {
		s.cache.Invalidate(cache.ConversationKey(conversationID))
		s.cache.InvalidateFamily(cache.FamilyConversations)
	}
	return res.RowsAffected, nil
}

func (s *ChatService) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Book").
		Preload("Buyer").
		Preload("Seller").
		Preload("Messages")
}

func (s *ChatService) load(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.preloaded(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, err
	}
	s.finish(ctx, &conv)
	return &conv, nil
}

// finish sorts messages and decorates books. A deleted listing leaves Book nil.
func (s *ChatService) finish(ctx context.Context, convs ...*models.Conversation) {
	books := make([]*models.Book, 0, len(convs))
	for _, conv := range convs {
		conv.SortMessages()
		books = append(books, conv.Book)
	}
	decorateBooks(ctx, s.images, s.log, books)
}
