package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/booksnap/booksnap-api/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth0GetUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" || r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"auth0|ana","name":"Ana","email":"ana@example.com","picture":"https://img/ana.png"}`))
	}))
	defer server.Close()

	svc := NewAuth0Service(&config.Config{Auth0Domain: server.URL})

	info, err := svc.GetUserInfo(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "auth0|ana", info.Sub)
	assert.Equal(t, "Ana", info.Name)
	assert.Equal(t, "https://img/ana.png", info.Picture)

	_, err = svc.GetUserInfo(context.Background(), "bad-token")
	assert.ErrorContains(t, err, "status 401")
}
