package cache

// Key families. Every mutation names the families it affects.
const (
	FamilyBooks         = "books"
	FamilyBook          = "book"
	FamilyMyBooks       = "myBooks"
	FamilyCategories    = "categories"
	FamilyCart          = "cart"
	FamilyWishlist      = "wishlist"
	FamilyConversations = "conversations"
	FamilyConversation  = "conversation"
)

// UserFamilies are the families scoped by identity, dropped on sign-out.
var UserFamilies = []string{FamilyMyBooks, FamilyCart, FamilyWishlist, FamilyConversations}

func BookKey(id string) Key              { return Key{Family: FamilyBook, Scope: id} }
func MyBooksKey(userID string) Key       { return Key{Family: FamilyMyBooks, Scope: userID} }
func CartKey(userID string) Key          { return Key{Family: FamilyCart, Scope: userID} }
func WishlistKey(userID string) Key      { return Key{Family: FamilyWishlist, Scope: userID} }
func ConversationsKey(userID string) Key { return Key{Family: FamilyConversations, Scope: userID} }
func ConversationKey(id string) Key      { return Key{Family: FamilyConversation, Scope: id} }
func BooksKey(filter string) Key         { return Key{Family: FamilyBooks, Scope: filter} }
func CategoriesKey() Key                 { return Key{Family: FamilyCategories} }
