package services

import "context"

// Identity is the signed-in profile a request acts as.
type Identity struct {
	UserID  string `json:"id"`
	Auth0ID string `json:"-"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by WithIdentity.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil && id.UserID != ""
}

func requireIdentity(ctx context.Context) (*Identity, error) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return nil, unauthenticated()
	}
	return id, nil
}
