package services

import (
	"context"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartSummary totals a cart.
type CartSummary struct {
	Items    []*models.CartItem `json:"items"`
	Count    int                `json:"count"`
	Subtotal float64            `json:"subtotal"`
	Shipping float64            `json:"shipping"`
	Total    float64            `json:"total"`
}

// Summarize totals items: shipping is free when the subtotal exceeds
// threshold, and fee otherwise. An empty cart costs nothing.
func Summarize(items []*models.CartItem, threshold, fee float64) CartSummary {
	sum := CartSummary{Items: items}
	for _, item := range items {
		sum.Count += item.Quantity
		sum.Subtotal += item.LineTotal()
	}
	if len(items) > 0 && sum.Subtotal <= threshold {
		sum.Shipping = fee
	}
	sum.Total = sum.Subtotal + sum.Shipping
	return sum
}

// CartService manages the signed-in user's cart.
type CartService struct {
	db     *gorm.DB
	cache  *cache.Cache
	images ImageService
	log    *zap.Logger

	freeShippingThreshold float64
	shippingFee           float64
}

func NewCartService(deps Deps) *CartService {
	return &CartService{
		db:                    deps.DB,
		cache:                 deps.Cache,
		images:                deps.Images,
		log:                   deps.Logger.Named("cart"),
		freeShippingThreshold: deps.FreeShippingThreshold,
		shippingFee:           deps.ShippingFee,
	}
}

// ListCart returns the cart items with their books, oldest first.
func (s *CartService) ListCart(ctx context.Context) ([]*models.CartItem, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.cache, cache.CartKey(id.UserID), func(ctx context.Context) ([]*models.CartItem, error) {
		var items []*models.CartItem
		err := s.db.WithContext(ctx).
			Preload("Book").Preload("Book.Seller").
			Where("user_id = ?", id.UserID).
			Order("created_at ASC").
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

// CartSummary totals the signed-in user's cart.
func (s *CartService) CartSummary(ctx context.Context) (CartSummary, error) {
	items, err := s.ListCart(ctx)
	if err != nil {
		return CartSummary{}, err
	}
	return Summarize(items, s.freeShippingThreshold, s.shippingFee), nil
}

// AddToCart sets the quantity of bookID in the cart, inserting the item when
// absent. Quantity 0 means 1. Repeated adds overwrite rather than accumulate.
func (s *CartService) AddToCart(ctx context.Context, bookID string, quantity int) (*models.CartItem, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case quantity < 0:
		return nil, validation("quantity must be positive")
	case quantity == 0:
		quantity = 1
	}

	db := s.db.WithContext(ctx)
	var book models.Book
	if err := db.First(&book, "id = ?", bookID).Error; err != nil {
		return nil, lookupError(err, "book")
	}
	if book.SellerID == id.UserID {
		return nil, invalidOperation("you cannot add your own listing to your cart")
	}
	if book.IsSold {
		return nil, invalidOperation("this book has already been sold")
	}

	item := models.CartItem{UserID: id.UserID, BookID: bookID, Quantity: quantity}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&item).Error
	if err != nil {
		return nil, backend(err)
	}
	s.cache.InvalidateFamily(cache.FamilyCart)

	// On conflict the generated id is not the stored one.
	var stored models.CartItem
	if err := db.Preload("Book").Preload("Book.Seller").First(&stored, "user_id = ? AND book_id = ?", id.UserID, bookID).Error; err != nil {
		return nil, backend(err)
	}
	decorateBooks(ctx, s.images, s.log, []*models.Book{stored.Book})
	return &stored, nil
}

// UpdateCartQuantity sets an item's quantity; zero or less removes it.
// It returns nil when the item was removed.
func (s *CartService) UpdateCartQuantity(ctx context.Context, itemID string, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, s.RemoveFromCart(ctx, itemID)
	}
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&models.CartItem{}).
		Where("id = ? AND user_id = ?", itemID, id.UserID).
		Update("quantity", quantity)
	if res.Error != nil {
		return nil, backend(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("cart item")
	}
	s.cache.InvalidateFamily(cache.FamilyCart)

	var item models.CartItem
	if err := db.Preload("Book").Preload("Book.Seller").First(&item, "id = ?", itemID).Error; err != nil {
		return nil, lookupError(err, "cart item")
	}
	decorateBooks(ctx, s.images, s.log, []*models.Book{item.Book})
	return &item, nil
}

// RemoveFromCart deletes one of the signed-in user's cart items.
func (s *CartService) RemoveFromCart(ctx context.Context, itemID string) error {
	id, err := requireIdentity(ctx)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, id.UserID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return backend(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("cart item")
	}
	s.cache.InvalidateFamily(cache.FamilyCart)
	return nil
}
