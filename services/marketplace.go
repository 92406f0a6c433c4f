package services

import (
	"context"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the shared resources every service is built from.
type Deps struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	Broker   realtime.Broker
	Images   ImageService
	UserInfo UserInfoProvider
	Logger   *zap.Logger

	FreeShippingThreshold float64
	ShippingFee           float64
}

// Marketplace groups the services behind the HTTP API.
type Marketplace struct {
	Books    *BookService
	Cart     *CartService
	Wishlist *WishlistService
	Chat     *ChatService
	Profiles *ProfileService

	Cache  *cache.Cache
	Bridge *realtime.Bridge
}

var marketplaceInstance *Marketplace

// NewMarketplace wires every service onto deps. A nil Cache disables caching.
func NewMarketplace(deps Deps) *Marketplace {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Broker == nil {
		deps.Broker = realtime.NewMemoryBroker()
	}
	bridge := realtime.NewBridge(deps.Broker, deps.Cache, deps.Logger.Named("realtime"))

	m := &Marketplace{
		Books:    NewBookService(deps),
		Cart:     NewCartService(deps),
		Wishlist: NewWishlistService(deps),
		Chat:     NewChatService(deps),
		Cache:    deps.Cache,
		Bridge:   bridge,
	}
	m.Profiles = NewProfileService(deps, bridge)
	return m
}

// Close ends every realtime watch.
func (m *Marketplace) Close() {
	m.Bridge.Close()
}

// GetMarketplace returns the marketplace set at startup
func GetMarketplace() *Marketplace {
	return marketplaceInstance
}

// SetMarketplace sets the marketplace instance used by the HTTP handlers
func SetMarketplace(m *Marketplace) {
	marketplaceInstance = m
}

// decorateBooks fills computed fields and resolves cover URLs. A cover that
// cannot be resolved is left without a URL.
func decorateBooks(ctx context.Context, images ImageService, log *zap.Logger, books []*models.Book) {
	for _, b := range books {
		if b == nil {
			continue
		}
		b.Decorate()
		b.CoverImageURL = nil
		if images == nil || b.CoverImageKey == nil || *b.CoverImageKey == "" {
			continue
		}
		url, err := images.GetImageURL(ctx, *b.CoverImageKey)
		if err != nil {
			log.Warn("cover url unavailable", zap.String("book_id", b.ID), zap.Error(err))
			continue
		}
		b.CoverImageURL = &url
	}
}
