package services

import (
	"context"
	"errors"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WishlistAction reports what a toggle did.
type WishlistAction string

const (
	WishlistAdded   WishlistAction = "added"
	WishlistRemoved WishlistAction = "removed"
)

// WishlistService manages the signed-in user's saved books.
type WishlistService struct {
	db     *gorm.DB
	cache  *cache.Cache
	images ImageService
	log    *zap.Logger
}

func NewWishlistService(deps Deps) *WishlistService {
	return &WishlistService{
		db:     deps.DB,
		cache:  deps.Cache,
		images: deps.Images,
		log:    deps.Logger.Named("wishlist"),
	}
}

// ToggleWishlist saves bookID when absent and removes it when present. An
// insert that loses a race to a concurrent insert still reports added.
func (s *WishlistService) ToggleWishlist(ctx context.Context, bookID string) (WishlistAction, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return "", err
	}
	db := s.db.WithContext(ctx)

	var existing models.WishlistItem
	err = db.First(&existing, "user_id = ? AND book_id = ?", id.UserID, bookID).Error
	switch {
	case err == nil:
		if err := db.Delete(&existing).Error; err != nil {
			return "", backend(err)
		}
		s.cache.InvalidateFamily(cache.FamilyWishlist)
		return WishlistRemoved, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", backend(err)
	}

	var book models.Book
	if err := db.Select("id").First(&book, "id = ?", bookID).Error; err != nil {
		return "", lookupError(err, "book")
	}

	item := models.WishlistItem{UserID: id.UserID, BookID: bookID}
	if err := db.Create(&item).Error; err != nil && !isUniqueViolation(err) {
		return "", backend(err)
	}
	s.cache.InvalidateFamily(cache.FamilyWishlist)
	return WishlistAdded, nil
}

// ListWishlist returns saved books, most recently saved first.
func (s *WishlistService) ListWishlist(ctx context.Context) ([]*models.WishlistItem, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.cache, cache.WishlistKey(id.UserID), func(ctx context.Context) ([]*models.WishlistItem, error) {
		var items []*models.WishlistItem
		err := s.db.WithContext(ctx).
			Preload("Book").Preload("Book.Seller").
			Where("user_id = ?", id.UserID).
			Order("created_at DESC").
			Find(&items).Error
		if err != nil {
			return nil, backend(err)
		}
		books := make([]*models.Book, 0, len(items))
		for _, item := range items {
			books = append(books, item.Book)
		}
		decorateBooks(ctx, s.images, s.log, books)
		return items, nil
	})
}

// IsWishlisted reports whether the signed-in user saved bookID.
func (s *WishlistService) IsWishlisted(ctx context.Context, bookID string) (bool, error) {
	items, err := s.ListWishlist(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.BookID == bookID {
			return true, nil
		}
	}
	return false, nil
}
