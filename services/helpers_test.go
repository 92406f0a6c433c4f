package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/realtime"
	"github.com/booksnap/booksnap-api/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubUserInfo struct {
	mu     sync.Mutex
	info   *Auth0UserInfo
	err    error
	tokens []string
}

func (s *stubUserInfo) GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, accessToken)
	if s.err != nil {
		return nil, s.err
	}
	info := *s.info
	return &info, nil
}

type fixture struct {
	db       *gorm.DB
	cache    *cache.Cache
	broker   *realtime.MemoryBroker
	images   *MockImageService
	userInfo *stubUserInfo
	m        *Marketplace
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       testutil.SetupTestDB(t),
		cache:    cache.New(time.Minute),
		broker:   realtime.NewMemoryBroker(),
		images:   NewMockImageService(),
		userInfo: &stubUserInfo{},
	}
	f.m = NewMarketplace(Deps{
		DB:                    f.db,
		Cache:                 f.cache,
		Broker:                f.broker,
		Images:                f.images,
		UserInfo:              f.userInfo,
		Logger:                zap.NewNop(),
		FreeShippingThreshold: 500,
		ShippingFee:           49,
	})
	t.Cleanup(func() {
		f.m.Close()
		_ = f.broker.Close()
	})
	return f
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	return testutil.CreateUser(t, f.db, name)
}

// as returns a context signed in as u.
func as(u *models.User) context.Context {
	return WithIdentity(context.Background(), &Identity{UserID: u.ID, Auth0ID: u.Auth0ID, Name: u.Name, Email: u.Email})
}

func anonymous() context.Context {
	return context.Background()
}
