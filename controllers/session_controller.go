package controllers

import (
	"net/http"

	"github.com/booksnap/booksnap-api/middleware"
	"github.com/booksnap/booksnap-api/services"
	"github.com/gin-gonic/gin"
)

// SignIn handles POST /api/v1/session - syncs the profile mirror from the
// identity provider and returns it
func SignIn(c *gin.Context) {
	auth0ID, err := middleware.GetSubject(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Could not extract user information")
		return
	}
	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Access token not found")
		return
	}

	user, err := services.GetMarketplace().Profiles.SignIn(c.Request.Context(), auth0ID, accessToken)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// GetSession handles GET /api/v1/session - returns the signed-in profile
func GetSession(c *gin.Context) {
	user, err := services.GetMarketplace().Profiles.GetProfile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// SignOut handles DELETE /api/v1/session - ends every realtime watch of the
// signed-in user and drops their cached views
func SignOut(c *gin.Context) {
	closed, err := services.GetMarketplace().Profiles.SignOut(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"watches_closed": closed})
}
