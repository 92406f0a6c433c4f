package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"regexp"
	"strconv"
	"strings"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BookSort orders browse results.
type BookSort string

const (
	SortFeatured  BookSort = "featured"
	SortPriceLow  BookSort = "price-low"
	SortPriceHigh BookSort = "price-high"
	SortNewest    BookSort = "newest"
)

// DefaultFeaturedLimit is the number of featured books on the home page.
const DefaultFeaturedLimit = 8

var coverKeyPattern = regexp.MustCompile(`^covers/[0-9a-f-]{36}\.(png|jpe?g|webp)$`)

// BookFilter narrows the browse listing. Zero values mean no restriction.
type BookFilter struct {
	Category  string
	Search    string
	Condition models.Condition
	MinPrice  *float64
	MaxPrice  *float64
	Sort      BookSort
}

// normalize validates the filter and resolves the category to its id.
func (f BookFilter) normalize() (BookFilter, error) {
	f.Search = strings.TrimSpace(f.Search)
	switch c := strings.TrimSpace(f.Category); {
	case c == "", strings.EqualFold(c, "all"):
		f.Category = ""
	default:
		id, ok := models.CategoryID(c)
		if !ok {
			return f, validation(fmt.Sprintf("unknown category %q", c))
		}
		f.Category = id
	}
	if f.Condition != "" && !f.Condition.Valid() {
		return f, validation(fmt.Sprintf("unknown condition %q", f.Condition))
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, validation("min_price must not exceed max_price")
	}
	switch f.Sort {
	case "":
		f.Sort = SortFeatured
	case SortFeatured, SortPriceLow, SortPriceHigh, SortNewest:
	default:
		return f, validation(fmt.Sprintf("unknown sort %q", f.Sort))
	}
	return f, nil
}

func (f BookFilter) scope() string {
	price := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	return strings.Join([]string{
		f.Category, strings.ToLower(f.Search), string(f.Condition),
		price(f.MinPrice), price(f.MaxPrice), string(f.Sort),
	}, "|")
}

// CreateBookInput is a new listing as submitted by its seller.
type CreateBookInput struct {
	Title         string           `json:"title"`
	Author        string           `json:"author"`
	ISBN          *string          `json:"isbn"`
	Price         float64          `json:"price"`
	OriginalPrice *float64         `json:"original_price"`
	Condition     models.Condition `json:"condition"`
	Category      string           `json:"category"`
	Description   string           `json:"description"`
	CoverImageKey *string          `json:"cover_image_key"`
}

// BookService owns listings: browse, detail, the seller's own listings and
// the category catalogue.
type BookService struct {
	db     *gorm.DB
	cache  *cache.Cache
	images ImageService
	log    *zap.Logger
}

func NewBookService(deps Deps) *BookService {
	return &BookService{
		db:     deps.DB,
		cache:  deps.Cache,
		images: deps.Images,
		log:    deps.Logger.Named("books"),
	}
}

// likeEscaper makes search text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// ListBooks returns unsold listings matching filter.
func (s *BookService) ListBooks(ctx context.Context, filter BookFilter) ([]*models.Book, error) {
	filter, err := filter.normalize()
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.cache, cache.BooksKey(filter.scope()), func(ctx context.Context) ([]*models.Book, error) {
		q := s.db.WithContext(ctx).Preload("Seller").Where("is_sold = ?", false)
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.Search != "" {
			like := "%" + likeEscaper.Replace(strings.ToLower(filter.Search)) + "%"
			q = q.Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\' OR LOWER(COALESCE(isbn, '')) LIKE ? ESCAPE '\'`, like, like, like)
		}
		if filter.Condition != "" {
			q = q.Where("condition = ?", filter.Condition)
		}
		if filter.MinPrice != nil {
			q = q.Where("price >= ?", *filter.MinPrice)
		}
		if filter.MaxPrice != nil {
			q = q.Where("price < ?", *filter.MaxPrice)
		}
		switch filter.Sort {
		case SortPriceLow:
			q = q.Order("price ASC").Order("created_at DESC")
		case SortPriceHigh:
			q = q.Order("price DESC").Order("created_at DESC")
		case SortNewest:
			q = q.Order("created_at DESC")
		default:
			q = q.Order("is_featured DESC").Order("created_at DESC")
		}

		var books []*models.Book
		if err := q.Find(&books).Error; err != nil {
			return nil, backend(err)
		}
		decorateBooks(ctx, s.images, s.log, books)
		return books, nil
	})
}

// ListFeaturedBooks returns up to limit featured, unsold books, newest first.
func (s *BookService) ListFeaturedBooks(ctx context.Context, limit int) ([]*models.Book, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	key := cache.BooksKey("featured:" + strconv.Itoa(limit))
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]*models.Book, error) {
		var books []*models.Book
		err := s.db.WithContext(ctx).Preload("Seller").
			Where("is_featured = ? AND is_sold = ?", true, false).
			Order("created_at DESC").Limit(limit).
			Find(&books).Error
		if err != nil {
			return nil, backend(err)
		}
		decorateBooks(ctx, s.images, s.log, books)
		return books, nil
	})
}

// GetBook returns one listing, sold or not.
func (s *BookService) GetBook(ctx context.Context, id string) (*models.Book, error) {
	return cache.Fetch(ctx, s.cache, cache.BookKey(id), func(ctx context.Context) (*models.Book, error) {
		var book models.Book
		if err := s.db.WithContext(ctx).Preload("Seller").First(&book, "id = ?", id).Error; err != nil {
			return nil, lookupError(err, "book")
		}
		decorateBooks(ctx, s.images, s.log, []*models.Book{&book})
		return &book, nil
	})
}

// ListMyBooks returns the signed-in seller's listings, sold ones included.
func (s *BookService) ListMyBooks(ctx context.Context) ([]*models.Book, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Fetch(ctx, s.cache, cache.MyBooksKey(id.UserID), func(ctx context.Context) ([]*models.Book, error) {
		var books []*models.Book
		err := s.db.WithContext(ctx).Preload("Seller").
			Where("seller_id = ?", id.UserID).
			Order("created_at DESC").
			Find(&books).Error
		if err != nil {
			return nil, backend(err)
		}
		decorateBooks(ctx, s.images, s.log, books)
		return books, nil
	})
}

// CreateBook lists a book for sale by the signed-in user.
func (s *BookService) CreateBook(ctx context.Context, in CreateBookInput) (*models.Book, error) {
	id, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	book, err := in.toBook(id.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(book).Error; err != nil {
		return nil, backend(err)
	}
	s.cache.InvalidateFamily(cache.FamilyBooks, cache.FamilyMyBooks, cache.FamilyCategories)

	s.log.Info("book listed", zap.String("book_id", book.ID), zap.String("seller_id", id.UserID))
	return s.GetBook(ctx, book.ID)
}

func (in CreateBookInput) toBook(sellerID string) (*models.Book, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	switch {
	case title == "":
		return nil, validation("title is required")
	case author == "":
		return nil, validation("author is required")
	case strings.TrimSpace(in.Category) == "":
		return nil, validation("category is required")
	case !in.Condition.Valid():
		return nil, validation(fmt.Sprintf("condition must be one of %v", models.Conditions))
	case in.Price < 0:
		return nil, validation("price must not be negative")
	case in.OriginalPrice != nil && *in.OriginalPrice < 0:
		return nil, validation("original_price must not be negative")
	}
	category, ok := models.CategoryID(in.Category)
	if !ok {
		return nil, validation(fmt.Sprintf("unknown category %q", in.Category))
	}

	book := &models.Book{
		Title:         title,
		Author:        author,
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		Condition:     in.Condition,
		Category:      category,
		Description:   strings.TrimSpace(in.Description),
		SellerID:      sellerID,
	}
	if in.ISBN != nil {
		if isbn := strings.TrimSpace(*in.ISBN); isbn != "" {
			book.ISBN = &isbn
		}
	}
	if in.CoverImageKey != nil && *in.CoverImageKey != "" {
		if !coverKeyPattern.MatchString(*in.CoverImageKey) {
			return nil, validation("cover_image_key must come from a cover upload")
		}
		key := *in.CoverImageKey
		book.CoverImageKey = &key
	}
	return book, nil
}

// DeleteBook removes a listing. Only its seller may delete it. Carts and
// wishlists drop the book; conversations about it are kept.
func (s *BookService) DeleteBook(ctx context.Context, bookID string) error {
	id, err := requireIdentity(ctx)
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	var book models.Book
	if err := db.First(&book, "id = ?", bookID).Error; err != nil {
		return lookupError(err, "book")
	}
	if book.SellerID != id.UserID {
		return forbidden("only the seller can delete this listing")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", bookID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("book_id = ?", bookID).Delete(&models.WishlistItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&book).Error
	})
	if err != nil {
		return backend(err)
	}
	s.cache.InvalidateFamily(cache.FamilyBooks, cache.FamilyBook, cache.FamilyMyBooks, cache.FamilyCategories,
		cache.FamilyCart, cache.FamilyWishlist, cache.FamilyConversations, cache.FamilyConversation)

	if book.CoverImageKey != nil && s.images != nil {
		if err := s.images.DeleteImage(ctx, *book.CoverImageKey); err != nil {
			s.log.Warn("cover not removed", zap.String("book_id", bookID), zap.Error(err))
		}
	}
	s.log.Info("book deleted", zap.String("book_id", bookID), zap.String("seller_id", id.UserID))
	return nil
}

// UploadCover stores a cover image and returns the key to pass to CreateBook.
func (s *BookService) UploadCover(ctx context.Context, file *multipart.FileHeader) (string, error) {
	if _, err := requireIdentity(ctx); err != nil {
		return "", err
	}
	if s.images == nil {
		return "", invalidOperation("cover uploads are not configured")
	}

	key, err := s.images.UploadImage(ctx, file)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			return "", &Error{Kind: ErrValidation, Code: uploadErr.Code, Message: uploadErr.Message}
		}
		return "", &Error{Kind: ErrBackend, Code: "UPLOAD_ERROR", Message: err.Error(), Err: err}
	}
	return key, nil
}

// CoverURL resolves a stored cover key to a URL.
func (s *BookService) CoverURL(ctx context.Context, key string) (string, error) {
	if s.images == nil {
		return "", nil
	}
	url, err := s.images.GetImageURL(ctx, key)
	if err != nil {
		return "", backend(err)
	}
	return url, nil
}

// ListCategories returns the catalogue with the number of unsold books in each.
func (s *BookService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return cache.Fetch(ctx, s.cache, cache.CategoriesKey(), func(ctx context.Context) ([]models.Category, error) {
		var rows []struct {
			Category string
			Count    int64
		}
		err := s.db.WithContext(ctx).Model(&models.Book{}).
			Select("category, COUNT(*) AS count").
			Where("is_sold = ?", false).
			Group("category").
			Scan(&rows).Error
		if err != nil {
			return nil, backend(err)
		}

		counts := make(map[string]int64, len(rows))
		for _, r := range rows {
			counts[r.Category] = r.Count
		}
		out := make([]models.Category, len(models.Categories))
		copy(out, models.Categories)
		for i := range out {
			out[i].Count = counts[out[i].ID]
		}
		return out, nil
	})
}
