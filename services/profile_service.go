package services

import (
	"context"
	"errors"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileService mirrors identity provider profiles and manages sessions.
type ProfileService struct {
	db       *gorm.DB
	cache    *cache.Cache
	userInfo UserInfoProvider
	bridge   *realtime.Bridge
	log      *zap.Logger
}

func NewProfileService(deps Deps, bridge *realtime.Bridge) *ProfileService {
	return &ProfileService{
		db:       deps.DB,
		cache:    deps.Cache,
		userInfo: deps.UserInfo,
		bridge:   bridge,
		log:      deps.Logger.Named("profiles"),
	}
}

// SignIn fetches the provider profile behind accessToken and stores it as
// the mirror for auth0ID.
func (s *ProfileService) SignIn(ctx context.Context, auth0ID, accessToken string) (*models.User, error) {
	if auth0ID == "" || accessToken == "" {
		return nil, unauthenticated()
	}
	if s.userInfo == nil {
		return nil, invalidOperation("identity provider is not configured")
	}

	info, err := s.userInfo.GetUserInfo(ctx, accessToken)
	if err != nil {
		return nil, &Error{Kind: ErrBackend, Code: "AUTH0_ERROR", Message: "Failed to fetch user information from Auth0", Err: err}
	}
	if info.Sub != "" && info.Sub != auth0ID {
		return nil, unauthenticated()
	}
	name := info.Name
	if name == "" {
		name = info.Email
	}
	if name == "" {
		return nil, validation("identity provider returned neither a name nor an email")
	}

	user := models.User{Auth0ID: auth0ID, Name: name, Email: info.Email}
	if info.Picture != "" {
		user.AvatarURL = &info.Picture
	}
	db := s.db.WithContext(ctx)
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "auth0_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "avatar_url", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, backend(err)
	}

	var stored models.User
	if err := db.First(&stored, "auth0_id = ?", auth0ID).Error; err != nil {
		return nil, backend(err)
	}
	// Listings and conversations embed display names.
	s.cache.InvalidateFamily(cache.FamilyBooks, cache.FamilyBook, cache.FamilyConversations, cache.FamilyConversation)

	s.log.Info("profile synced", zap.String("user_id", stored.ID))
	return &stored, nil
}

// ResolveIdentity maps a provider subject to its mirrored profile.
// It returns ErrNotFound until the subject has signed in once.
func (s *ProfileService) ResolveIdentity(ctx context.Context, auth0ID string) (*Identity, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "auth0_id = ?", auth0ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("profile")
	}
	if err != nil {
		return nil, backend(err)
	}
	return &Identity{UserID: user.ID, Auth0ID: user.Auth0ID, Name: user.Name, Email: user.Email}, nil
}

// GetProfile returns the signed-in user's profile.
func (s *ProfileService) GetProfile(ctx context.Context) (*models.User, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id.UserID).Error; err != nil {
		return nil, lookupError(err, "profile")
	}
	return &user, nil
}

// SignOut ends the signed-in user's realtime watches and drops their cached
// views. It returns the number of watches closed.
func (s *ProfileService) SignOut(ctx context.Context) (int, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	if s.bridge != nil {
		closed = s.bridge.CloseUser(id.UserID)
	}
	s.cache.InvalidateScope(id.UserID, cache.UserFamilies...)
	s.log.Info("signed out", zap.String("user_id", id.UserID), zap.Int("watches_closed", closed))
	return closed, nil
}
