package controllers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/services"
	"github.com/gin-gonic/gin"
)

// ListBooks handles GET /api/v1/books - browses unsold listings
// Query parameters: category, search, condition, min_price, max_price, sort
func ListBooks(c *gin.Context) {
	filter := services.BookFilter{
		Category:  c.Query("category"),
		Search:    c.Query("search"),
		Condition: models.Condition(c.Query("condition")),
		Sort:      services.BookSort(c.Query("sort")),
	}

	var err error
	if filter.MinPrice, err = queryFloat(c, "min_price"); err != nil {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if filter.MaxPrice, err = queryFloat(c, "max_price"); err != nil {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	books, err := services.GetMarketplace().Books.ListBooks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, books)
}

// ListFeaturedBooks handles GET /api/v1/books/featured - the home page selection
func ListFeaturedBooks(c *gin.Context) {
	limit := services.DefaultFeaturedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = n
	}

	books, err := services.GetMarketplace().Books.ListFeaturedBooks(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, books)
}

// GetBook handles GET /api/v1/books/:id
func GetBook(c *gin.Context) {
	book, err := services.GetMarketplace().Books.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, book)
}

// ListCategories handles GET /api/v1/categories
func ListCategories(c *gin.Context) {
	categories, err := services.GetMarketplace().Books.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, categories)
}

// ListMyBooks handles GET /api/v1/me/books - the signed-in seller's listings,
// sold ones included
func ListMyBooks(c *gin.Context) {
	books, err := services.GetMarketplace().Books.ListMyBooks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, books)
}

// CreateBook handles POST /api/v1/books - lists a book for sale
func CreateBook(c *gin.Context) {
	var req services.CreateBookInput
	if !bindJSON(c, &req) {
		return
	}

	book, err := services.GetMarketplace().Books.CreateBook(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, book)
}

// DeleteBook handles DELETE /api/v1/books/:id - only the seller may delete
func DeleteBook(c *gin.Context) {
	id := c.Param("id")
	if err := services.GetMarketplace().Books.DeleteBook(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}

func queryFloat(c *gin.Context, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &v, nil
}
