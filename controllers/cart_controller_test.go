package controllers

import (
	"net/http"
	"testing"

	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartRouter(env *testEnv, auth0ID string) *gin.Engine {
	router := setupTestRouter()
	router.GET("/cart", env.as(auth0ID, GetCart)...)
	router.POST("/cart", env.as(auth0ID, AddToCart)...)
	router.PATCH("/cart/:id", env.as(auth0ID, UpdateCartItem)...)
	router.DELETE("/cart/:id", env.as(auth0ID, RemoveCartItem)...)
	return router
}

func TestAddToCart(t *testing.T) {
	env := setupTestEnv(t, nil)
	ana := env.user(t, "ana")
	ben := env.user(t, "ben")
	book := testutil.CreateBook(t, env.db, ana, "Dune", 300)
	sold := testutil.CreateBook(t, env.db, ana, "Emma", 100, testutil.Sold())

	tests := []struct {
		name           string
		auth0ID        string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
		checkResponse  func(t *testing.T, response map[string]interface{})
	}{
		{
			name:           "Default quantity",
			auth0ID:        ben.Auth0ID,
			requestBody:    map[string]interface{}{"book_id": book.ID},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, response map[string]interface{}) {
				data := dataObject(t, response)
				assert.Equal(t, float64(1), data["quantity"])
				assert.Equal(t, "Dune", data["book"].(map[string]interface{})["title"])
			},
		},
		{
			name:           "Own listing",
			auth0ID:        ana.Auth0ID,
			requestBody:    map[string]interface{}{"book_id": book.ID},
			expectedStatus: http.StatusConflict,
			expectedError:  "INVALID_OPERATION",
		},
		{
			name:           "Sold book",
			auth0ID:        ben.Auth0ID,
			requestBody:    map[string]interface{}{"book_id": sold.ID},
			expectedStatus: http.StatusConflict,
			expectedError:  "INVALID_OPERATION",
		},
		{
			name:           "Unknown book",
			auth0ID:        ben.Auth0ID,
			requestBody:    map[string]interface{}{"book_id": "missing"},
			expectedStatus: http.StatusNotFound,
			expectedError:  "BOOK_NOT_FOUND",
		},
		{
			name:           "Negative quantity",
			auth0ID:        ben.Auth0ID,
			requestBody:    map[string]interface{}{"book_id": book.ID, "quantity": -2},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Anonymous",
			auth0ID:        "",
			requestBody:    map[string]interface{}{"book_id": book.ID},
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "UNAUTHENTICATED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, response := doJSON(t, cartRouter(env, tt.auth0ID), http.MethodPost, "/cart", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCode(response))
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, response)
			}
		})
	}
}

func TestAddToCartTwiceReplacesQuantity(t *testing.T) {
	env := setupTestEnv(t, nil)
	ana := env.user(t, "ana")
	ben := env.user(t, "ben")
	book := testutil.CreateBook(t, env.db, ana, "Dune", 300)
	router := cartRouter(env, ben.Auth0ID)

	_, first := doJSON(t, router, http.MethodPost, "/cart", map[string]interface{}{"book_id": book.ID, "quantity": 2})
	_, second := doJSON(t, router, http.MethodPost, "/cart", map[string]interface{}{"book_id": book.ID, "quantity": 5})

	assert.Equal(t, dataObject(t, first)["id"], dataObject(t, second)["id"])
	assert.Equal(t, float64(5), dataObject(t, second)["quantity"])

	var rows int64
	require.NoError(t, env.db.Model(&models.CartItem{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestGetCartTotals(t *testing.T) {
	env := setupTestEnv(t, nil)
	ana := env.user(t, "ana")
	ben := env.user(t, "ben")
	dune := testutil.CreateBook(t, env.db, ana, "Dune", 300)
	emma := testutil.CreateBook(t, env.db, ana, "Emma", 150)
	router := cartRouter(env, ben.Auth0ID)

	_, response := doJSON(t, router, http.MethodGet, "/cart", nil)
	empty := dataObject(t, response)
	assert.Equal(t, float64(0), empty["total"])
	assert.Equal(t, float64(0), empty["shipping"])

	doJSON(t, router, http.MethodPost, "/cart", map[string]interface{}{"book_id": emma.ID})
	_, response = doJSON(t, router, http.MethodGet, "/cart", nil)
	summary := dataObject(t, response)
	assert.Equal(t, float64(150), summary["subtotal"])
	assert.Equal(t, float64(49), summary["shipping"])
	assert.Equal(t, float64(199), summary["total"])

	doJSON(t, router, http.MethodPost, "/cart", map[string]interface{}{"book_id": dune.ID, "quantity": 2})
	_, response = doJSON(t, router, http.MethodGet, "/cart", nil)
	summary = dataObject(t, response)
	assert.Equal(t, float64(3), summary["count"])
	assert.Equal(t, float64(750), summary["subtotal"])
	assert.Equal(t, float64(0), summary["shipping"])
	assert.Equal(t, float64(750), summary["total"])
	assert.Len(t, summary["items"], 2)
}

func TestUpdateCartItem(t *testing.T) {
	env := setupTestEnv(t, nil)
	ana := env.user(t, "ana")
	ben := env.user(t, "ben")
	book := testutil.CreateBook(t, env.db, ana, "Dune", 100)
	router := cartRouter(env, ben.Auth0ID)

	_, added := doJSON(t, router, http.MethodPost, "/cart", map[string]interface{}{"book_id": book.ID})
	itemID := dataObject(t, added)["id"].(string)

	w, response := doJSON(t, router, http.MethodPatch, "/cart/"+itemID, map[string]interface{}{"quantity": 3})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), dataObject(t, response)["quantity"])

	_, response = doJSON(t, router, http.MethodGet, "/cart", nil)
	assert.Equal(t, float64(300), dataObject(t, response)["subtotal"])

	w, response = doJSON(t, cartRouter(env, ana.Auth0ID), http.MethodPatch, "/cart/"+itemID, map[string]interface{}{"quantity": 4})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CART_ITEM_NOT_FOUND", errorCode(response))

	w, response = doJSON(t, router, http.MethodPatch, "/cart/"+itemID, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(response))

	w, response = doJSON(t, router, http.MethodPatch, "/cart/"+itemID, map[string]interface{}{"quantity": 0})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataObject(t, response)["removed"])

	_, response = doJSON(t, router, http.MethodGet, "/cart", nil)
	assert.Empty(t, dataObject(t, response)["items"])
}

func TestRemoveCartItem(t *testing.T) {
	env := setupTestEnv(t, nil)
	ana := env.user(t, "ana")
	ben := env.user(t, "ben")
	book := testutil.CreateBook(t, env.db, ana, "Dune", 100)
	router := cartRouter(env, ben.Auth0ID)

	_, added := doJSON(t, router, http.MethodPost, "/cart", map[string]interface{}{"book_id": book.ID})
	itemID := dataObject(t, added)["id"].(string)

	w, _ := doJSON(t, router, http.MethodDelete, "/cart/"+itemID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, response := doJSON(t, router, http.MethodDelete, "/cart/"+itemID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CART_ITEM_NOT_FOUND", errorCode(response))
}
