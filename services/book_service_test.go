package services

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(books []*models.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.Title)
	}
	return out
}

func float(v float64) *float64 { return &v }

func TestListBooksFilters(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")

	testutil.CreateBook(t, f.db, seller, "Dune", 120, testutil.WithCategory("sci-fi"), testutil.WithAuthor("Frank Herbert"))
	testutil.CreateBook(t, f.db, seller, "Emma", 80, testutil.WithCategory("romance"), testutil.WithCondition(models.ConditionNew))
	testutil.CreateBook(t, f.db, seller, "Gone Girl", 200, testutil.WithCategory("mystery"), testutil.WithISBN("978-0307588371"))
	testutil.CreateBook(t, f.db, seller, "Sold Out", 50, testutil.Sold())

	tests := []struct {
		name   string
		filter BookFilter
		want   []string
	}{
		{"category id", BookFilter{Category: "sci-fi"}, []string{"Dune"}},
		{"category name", BookFilter{Category: "Mystery & Thriller"}, []string{"Gone Girl"}},
		{"all categories", BookFilter{Category: "all", Sort: SortPriceLow}, []string{"Emma", "Dune", "Gone Girl"}},
		{"search title", BookFilter{Search: "dun"}, []string{"Dune"}},
		{"search author", BookFilter{Search: "HERBERT"}, []string{"Dune"}},
		{"search isbn", BookFilter{Search: "0307588"}, []string{"Gone Girl"}},
		{"search percent is literal", BookFilter{Search: "%"}, []string{}},
		{"search underscore is literal", BookFilter{Search: "d_ne"}, []string{}},
		{"condition", BookFilter{Condition: models.ConditionNew}, []string{"Emma"}},
		{"price range excludes max", BookFilter{MinPrice: float(80), MaxPrice: float(200), Sort: SortPriceLow}, []string{"Emma", "Dune"}},
		{"price high", BookFilter{Sort: SortPriceHigh}, []string{"Gone Girl", "Dune", "Emma"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := f.m.Books.ListBooks(anonymous(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(books))
		})
	}
}

func TestListBooksSearchMatchesWildcardsLiterally(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")

	testutil.CreateBook(t, f.db, seller, "100% Wolf", 60)
	testutil.CreateBook(t, f.db, seller, "Catch_22", 90)
	testutil.CreateBook(t, f.db, seller, "Catch 22", 95)
	testutil.CreateBook(t, f.db, seller, `C:\Books`, 40)

	tests := []struct {
		search string
		want   []string
	}{
		{"100%", []string{"100% Wolf"}},
		{"catch_", []string{"Catch_22"}},
		{`c:\`, []string{`C:\Books`}},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			books, err := f.m.Books.ListBooks(anonymous(), BookFilter{Search: tt.search})
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(books))
		})
	}
}

func TestListBooksRejectsBadFilters(t *testing.T) {
	f := setup(t)

	tests := []BookFilter{
		{Category: "cookbooks"},
		{Condition: "Poor"},
		{Sort: "random"},
		{MinPrice: float(10), MaxPrice: float(5)},
	}
	for _, filter := range tests {
		_, err := f.m.Books.ListBooks(anonymous(), filter)
		assert.ErrorIs(t, err, ErrValidation, "filter %+v", filter)
	}
}

func TestListBooksFeaturedFirstThenNewest(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")

	old := testutil.CreateBook(t, f.db, seller, "Old", 10)
	featured := testutil.CreateBook(t, f.db, seller, "Featured", 10, testutil.Featured())
	recent := testutil.CreateBook(t, f.db, seller, "Recent", 10)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, b := range []*models.Book{old, featured, recent} {
		require.NoError(t, f.db.Model(b).Update("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
	}

	books, err := f.m.Books.ListBooks(anonymous(), BookFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Featured", "Recent", "Old"}, titles(books))

	books, err = f.m.Books.ListBooks(anonymous(), BookFilter{Sort: SortNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"Recent", "Featured", "Old"}, titles(books))
}

func TestListBooksSellerName(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	testutil.CreateBook(t, f.db, seller, "Kept", 10)
	orphan := &models.User{ID: "gone"}
	testutil.CreateBook(t, f.db, orphan, "Orphan", 20)

	books, err := f.m.Books.ListBooks(anonymous(), BookFilter{Sort: SortPriceLow})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "ana", books[0].SellerName)
	assert.Equal(t, models.UnknownSellerName, books[1].SellerName)
}

func TestListBooksIsCachedUntilAMutation(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	testutil.CreateBook(t, f.db, seller, "First", 10)

	books, err := f.m.Books.ListBooks(anonymous(), BookFilter{})
	require.NoError(t, err)
	require.Len(t, books, 1)

	// Written behind the service's back: still served from cache.
	testutil.CreateBook(t, f.db, seller, "Sneaky", 10)
	books, err = f.m.Books.ListBooks(anonymous(), BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 1)

	_, err = f.m.Books.CreateBook(as(seller), CreateBookInput{
		Title: "Third", Author: "A", Price: 5, Condition: models.ConditionGood, Category: "fiction",
	})
	require.NoError(t, err)
	books, err = f.m.Books.ListBooks(anonymous(), BookFilter{})
	require.NoError(t, err)
	assert.Len(t, books, 3)
}

func TestListFeaturedBooks(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	testutil.CreateBook(t, f.db, seller, "Plain", 10)
	testutil.CreateBook(t, f.db, seller, "Star", 10, testutil.Featured())
	testutil.CreateBook(t, f.db, seller, "Sold Star", 10, testutil.Featured(), testutil.Sold())

	books, err := f.m.Books.ListFeaturedBooks(anonymous(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Star"}, titles(books))
}

func TestGetBook(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	book := testutil.CreateBook(t, f.db, seller, "Dune", 75, testutil.WithOriginalPrice(100), testutil.Sold())

	got, err := f.m.Books.GetBook(anonymous(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.True(t, got.IsSold, "Sold books are still viewable")
	if assert.NotNil(t, got.DiscountPct) {
		assert.Equal(t, 25, *got.DiscountPct)
	}

	_, err = f.m.Books.GetBook(anonymous(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBook(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	f.images.Put("covers/3f1c1b62-7d3a-4c57-9a55-2f3e4b7c8d90.png", []byte("png"))

	book, err := f.m.Books.CreateBook(as(seller), CreateBookInput{
		Title:         "  Dune ",
		Author:        "Frank Herbert",
		ISBN:          strPtr(" 978-0441013593 "),
		Price:         120,
		OriginalPrice: float(200),
		Condition:     models.ConditionLikeNew,
		Category:      "Sci-Fi & Fantasy",
		CoverImageKey: strPtr("covers/3f1c1b62-7d3a-4c57-9a55-2f3e4b7c8d90.png"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, "sci-fi", book.Category)
	assert.Equal(t, seller.ID, book.SellerID)
	assert.Equal(t, "978-0441013593", *book.ISBN)
	assert.False(t, book.IsSold)
	if assert.NotNil(t, book.CoverImageURL) {
		assert.Contains(t, *book.CoverImageURL, "covers/3f1c1b62")
	}

	mine, err := f.m.Books.ListMyBooks(as(seller))
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, titles(mine))
}

func TestCreateBookValidation(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	valid := CreateBookInput{Title: "T", Author: "A", Price: 1, Condition: models.ConditionGood, Category: "fiction"}

	tests := []struct {
		name   string
		modify func(*CreateBookInput)
	}{
		{"missing title", func(in *CreateBookInput) { in.Title = "  " }},
		{"missing author", func(in *CreateBookInput) { in.Author = "" }},
		{"missing category", func(in *CreateBookInput) { in.Category = "" }},
		{"unknown category", func(in *CreateBookInput) { in.Category = "cookbooks" }},
		{"bad condition", func(in *CreateBookInput) { in.Condition = "Poor" }},
		{"negative price", func(in *CreateBookInput) { in.Price = -1 }},
		{"negative original price", func(in *CreateBookInput) { in.OriginalPrice = float(-5) }},
		{"foreign cover key", func(in *CreateBookInput) { in.CoverImageKey = strPtr("../../etc/passwd") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.modify(&in)
			_, err := f.m.Books.CreateBook(as(seller), in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := f.m.Books.CreateBook(anonymous(), valid)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDeleteBook(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	buyer := f.user(t, "ben")
	key := "covers/3f1c1b62-7d3a-4c57-9a55-2f3e4b7c8d90.png"
	f.images.Put(key, []byte("png"))
	book := testutil.CreateBook(t, f.db, seller, "Dune", 100)
	require.NoError(t, f.db.Model(book).Update("cover_image_key", key).Error)

	_, err := f.m.Cart.AddToCart(as(buyer), book.ID, 1)
	require.NoError(t, err)
	_, err = f.m.Wishlist.ToggleWishlist(as(buyer), book.ID)
	require.NoError(t, err)
	conv, err := f.m.Chat.StartConversation(as(buyer), book.ID, seller.ID)
	require.NoError(t, err)
	_, err = f.m.Cart.ListCart(as(buyer))
	require.NoError(t, err)

	err = f.m.Books.DeleteBook(as(buyer), book.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.m.Books.DeleteBook(as(seller), book.ID))

	_, err = f.m.Books.GetBook(anonymous(), book.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	cart, err := f.m.Cart.ListCart(as(buyer))
	require.NoError(t, err)
	assert.Empty(t, cart)
	wishlist, err := f.m.Wishlist.ListWishlist(as(buyer))
	require.NoError(t, err)
	assert.Empty(t, wishlist)
	assert.Equal(t, []string{key}, f.images.Deleted())

	kept, err := f.m.Chat.GetConversation(as(buyer), conv.ID)
	require.NoError(t, err, "Conversations outlive their listing")
	assert.Nil(t, kept.Book)

	err = f.m.Books.DeleteBook(as(seller), book.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCategoriesCountsUnsoldBooks(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	testutil.CreateBook(t, f.db, seller, "A", 1, testutil.WithCategory("history"))
	testutil.CreateBook(t, f.db, seller, "B", 1, testutil.WithCategory("history"))
	testutil.CreateBook(t, f.db, seller, "C", 1, testutil.WithCategory("history"), testutil.Sold())
	testutil.CreateBook(t, f.db, seller, "D", 1, testutil.WithCategory("romance"))

	cats, err := f.m.Books.ListCategories(anonymous())
	require.NoError(t, err)
	require.Len(t, cats, len(models.Categories))

	counts := map[string]int64{}
	for _, c := range cats {
		counts[c.ID] = c.Count
	}
	assert.Equal(t, int64(2), counts["history"])
	assert.Equal(t, int64(1), counts["romance"])
	assert.Equal(t, int64(0), counts["fiction"])
	assert.Equal(t, int64(0), models.Categories[0].Count, "The catalogue itself is never mutated")
}

func TestUploadCover(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")

	key, err := f.m.Books.UploadCover(as(seller), coverFile(t, "cover.jpg", 32))
	require.NoError(t, err)
	assert.True(t, f.images.ImageExists(key))
	assert.Regexp(t, coverKeyPattern, key)

	_, err = f.m.Books.UploadCover(as(seller), coverFile(t, "cover.gif", 32))
	assert.ErrorIs(t, err, ErrValidation)
	var svcErr *Error
	if assert.ErrorAs(t, err, &svcErr) {
		assert.Equal(t, "INVALID_FILE_FORMAT", svcErr.Code)
	}

	_, err = f.m.Books.UploadCover(anonymous(), coverFile(t, "cover.png", 32))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestBookMutationsInvalidateListings(t *testing.T) {
	f := setup(t)
	seller := f.user(t, "ana")
	f.cache.Set(cache.BooksKey("x"), []*models.Book{})
	f.cache.Set(cache.CategoriesKey(), []models.Category{})

	_, err := f.m.Books.CreateBook(as(seller), CreateBookInput{
		Title: "T", Author: "A", Price: 1, Condition: models.ConditionGood, Category: "fiction",
	})
	require.NoError(t, err)

	_, ok := f.cache.Get(cache.BooksKey("x"))
	assert.False(t, ok)
	_, ok = f.cache.Get(cache.CategoriesKey())
	assert.False(t, ok)
}

func strPtr(s string) *string { return &s }

func coverFile(t *testing.T, name string, size int) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="cover"; filename="`+name+`"`)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{'x'}, size))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["cover"][0]
}
