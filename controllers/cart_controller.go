package controllers

import (
	"net/http"

	"github.com/booksnap/booksnap-api/services"
	"github.com/gin-gonic/gin"
)

// AddToCartRequest represents the request body for adding a book to the cart
// A quantity of 0 or an omitted quantity means 1
type AddToCartRequest struct {
	BookID   string `json:"book_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

// UpdateCartItemRequest represents the request body for changing a quantity
// A quantity of 0 or less removes the item
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// GetCart handles GET /api/v1/cart - returns the items with their totals
func GetCart(c *gin.Context) {
	summary, err := services.GetMarketplace().Cart.CartSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, summary)
}

// AddToCart handles POST /api/v1/cart - adding a book already in the cart
// replaces its quantity
func AddToCart(c *gin.Context) {
	var req AddToCartRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := services.GetMarketplace().Cart.AddToCart(c.Request.Context(), req.BookID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, item)
}

// UpdateCartItem handles PATCH /api/v1/cart/:id
func UpdateCartItem(c *gin.Context) {
	var req UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	id := c.Param("id")
	item, err := services.GetMarketplace().Cart.UpdateCartQuantity(c.Request.Context(), id, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if item == nil {
		respondOK(c, http.StatusOK, gin.H{"id": id, "removed": true})
		return
	}
	respondOK(c, http.StatusOK, item)
}

// RemoveCartItem handles DELETE /api/v1/cart/:id
func RemoveCartItem(c *gin.Context) {
	id := c.Param("id")
	if err := services.GetMarketplace().Cart.RemoveFromCart(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "removed": true})
}
