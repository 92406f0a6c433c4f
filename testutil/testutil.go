// Package testutil holds helpers shared by package tests: environment
// guards, an in-memory database and seed data.
package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/booksnap/booksnap-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// GuardMain is the body of TestMain for packages that touch a database.
func GuardMain(m *testing.M) int {
	if env := os.Getenv("GO_ENV"); env != "test" {
		fmt.Fprintf(os.Stderr, "tests must run with GO_ENV=test (current: %q)\n", env)
		fmt.Fprintln(os.Stderr, "run: GO_ENV=test go test ./...")
		return 1
	}
	return m.Run()
}

// SetupTestDB opens a migrated in-memory SQLite database. A single
// connection keeps every query on the same in-memory database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// CreateUser stores a profile mirror named name.
func CreateUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()

	user := &models.User{
		Auth0ID: "auth0|" + name,
		Name:    name,
		Email:   name + "@example.com",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// BookOption adjusts a seeded book.
type BookOption func(*models.Book)

func WithCategory(category string) BookOption {
	return func(b *models.Book) { b.Category = category }
}

func WithCondition(c models.Condition) BookOption {
	return func(b *models.Book) { b.Condition = c }
}

func WithOriginalPrice(p float64) BookOption {
	return func(b *models.Book) { b.OriginalPrice = &p }
}

func WithAuthor(author string) BookOption {
	return func(b *models.Book) { b.Author = author }
}

func WithISBN(isbn string) BookOption {
	return func(b *models.Book) { b.ISBN = &isbn }
}

func Featured() BookOption {
	return func(b *models.Book) { b.IsFeatured = true }
}

func Sold() BookOption {
	return func(b *models.Book) { b.IsSold = true }
}

// CreateBook stores an unsold "Good" fiction listing by seller.
func CreateBook(t *testing.T, db *gorm.DB, seller *models.User, title string, price float64, opts ...BookOption) *models.Book {
	t.Helper()

	book := &models.Book{
		Title:     title,
		Author:    "Author of " + title,
		Price:     price,
		Condition: models.ConditionGood,
		Category:  "fiction",
		SellerID:  seller.ID,
	}
	for _, opt := range opts {
		opt(book)
	}
	require.NoError(t, db.Create(book).Error)
	return book
}
