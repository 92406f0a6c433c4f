package controllers

import (
	"net/http"

	"github.com/booksnap/booksnap-api/services"
	"github.com/gin-gonic/gin"
)

// ToggleWishlistRequest represents the request body for saving or unsaving a book
type ToggleWishlistRequest struct {
	BookID string `json:"book_id" binding:"required"`
}

// GetWishlist handles GET /api/v1/wishlist
func GetWishlist(c *gin.Context) {
	items, err := services.GetMarketplace().Wishlist.ListWishlist(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, items)
}

// GetWishlistStatus handles GET /api/v1/wishlist/:book_id
func GetWishlistStatus(c *gin.Context) {
	bookID := c.Param("book_id")
	saved, err := services.GetMarketplace().Wishlist.IsWishlisted(c.Request.Context(), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"book_id": bookID, "wishlisted": saved})
}

// ToggleWishlist handles POST /api/v1/wishlist/toggle
func ToggleWishlist(c *gin.Context) {
	var req ToggleWishlistRequest
	if !bindJSON(c, &req) {
		return
	}

	action, err := services.GetMarketplace().Wishlist.ToggleWishlist(c.Request.Context(), req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"book_id": req.BookID, "action": action})
}
