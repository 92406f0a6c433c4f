package models

import "strings"

// Category is an entry of the fixed browse catalogue. Books store the ID.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Count int64  `json:"count"`
}

// Categories is the browse catalogue in display order.
var Categories = []Category{
	{ID: "fiction", Name: "Fiction", Icon: "📖"},
	{ID: "non-fiction", Name: "Non-Fiction", Icon: "📚"},
	{ID: "mystery", Name: "Mystery & Thriller", Icon: "🔍"},
	{ID: "romance", Name: "Romance", Icon: "💕"},
	{ID: "sci-fi", Name: "Sci-Fi & Fantasy", Icon: "🚀"},
	{ID: "biography", Name: "Biography", Icon: "👤"},
	{ID: "history", Name: "History", Icon: "🏛️"},
	{ID: "children", Name: "Children's Books", Icon: "🧒"},
}

// CategoryID resolves a category id or display name, case-insensitively,
// to its id.
func CategoryID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(raw, c.ID) || strings.EqualFold(raw, c.Name) {
			return c.ID, true
		}
	}
	return "", false
}
