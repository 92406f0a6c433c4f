package controllers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/booksnap/booksnap-api/services"
	"github.com/booksnap/booksnap-api/utils"
	"github.com/gin-gonic/gin"
)

// UploadCover handles POST /api/v1/books/cover - stores a cover image sent
// as the multipart field "image" and returns the key to list the book with
func UploadCover(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Image file is required in the \"image\" field")
		return
	}

	books := services.GetMarketplace().Books
	key, err := books.UploadCover(c.Request.Context(), fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}

	url, err := books.CoverURL(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{
		"cover_image_key": key,
		"cover_image_url": url,
	})
}

// GetUploadedCover handles GET /api/v1/uploads/covers/:filename - serves covers
// kept on local disk when no bucket is configured
func GetUploadedCover(c *gin.Context) {
	filename := c.Param("filename")

	if filename == "" {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "Filename is required")
		return
	}

	// Prevent directory traversal
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		abortWithError(c, http.StatusBadRequest, "INVALID_FILENAME", "Invalid filename")
		return
	}

	contentType := utils.ImageContentType(filename)
	if !strings.HasPrefix(contentType, "image/") {
		abortWithError(c, http.StatusBadRequest, "INVALID_FILE_TYPE",
			"Only "+strings.Join(utils.AllowedImageFormats(), ", ")+" files are supported")
		return
	}

	filePath := filepath.Join(utils.UploadDir, filepath.FromSlash(utils.CoverPrefix), filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		abortWithError(c, http.StatusNotFound, "FILE_NOT_FOUND", "Image not found")
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(filePath)
}
