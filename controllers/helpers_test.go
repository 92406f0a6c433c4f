package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/booksnap/booksnap-api/cache"
	"github.com/booksnap/booksnap-api/config"
	"github.com/booksnap/booksnap-api/middleware"
	"github.com/booksnap/booksnap-api/models"
	"github.com/booksnap/booksnap-api/realtime"
	"github.com/booksnap/booksnap-api/services"
	"github.com/booksnap/booksnap-api/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testToken = "test-token"

type testEnv struct {
	db     *gorm.DB
	m      *services.Marketplace
	images *services.MockImageService
	broker *realtime.MemoryBroker
}

// setupTestEnv installs a marketplace over an in-memory database. userInfo
// may be nil when the test never signs in.
func setupTestEnv(t *testing.T, userInfo services.UserInfoProvider) *testEnv {
	t.Helper()
	env := &testEnv{
		db:     testutil.SetupTestDB(t),
		images: services.NewMockImageService(),
		broker: realtime.NewMemoryBroker(),
	}
	env.m = services.NewMarketplace(services.Deps{
		DB:                    env.db,
		Cache:                 cache.New(time.Minute),
		Broker:                env.broker,
		Images:                env.images,
		UserInfo:              userInfo,
		Logger:                zap.NewNop(),
		FreeShippingThreshold: 500,
		ShippingFee:           49,
	})
	services.SetMarketplace(env.m)
	t.Cleanup(func() {
		env.m.Close()
		_ = env.broker.Close()
		services.SetMarketplace(nil)
	})
	return env
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	return testutil.CreateUser(t, e.db, name)
}

// as prefixes h with the authentication chain for auth0ID. An empty
// auth0ID leaves the request anonymous.
func (e *testEnv) as(auth0ID string, h gin.HandlerFunc) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		mockAuthMiddleware(auth0ID, testToken),
		middleware.ResolveSession(e.m.Profiles, zap.NewNop()),
		h,
	}
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// setupMockAuth0Server creates a mock HTTP server that simulates Auth0's /userinfo endpoint
func setupMockAuth0Server(userInfoMap map[string]*services.Auth0UserInfo) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if len(authHeader) < 7 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		userInfo, exists := userInfoMap[authHeader[7:]]
		if !exists {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userInfo)
	}))
}

func auth0Provider(server *httptest.Server) *services.Auth0Service {
	return services.NewAuth0Service(&config.Config{Auth0Domain: server.URL})
}

// mockAuthMiddleware simulates the Auth0 JWT middleware for testing
// It sets up the context exactly as the real EnsureValidToken middleware does
func mockAuthMiddleware(auth0ID, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth0ID != "" {
			c.Set(middleware.SubjectKey, auth0ID)
			c.Set(middleware.AccessTokenKey, accessToken)
		}
		c.Next()
	}
}

// doJSON sends body as JSON and decodes the envelope of the response.
func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "body: %s", w.Body.String())
	return w, response
}

func errorCode(response map[string]interface{}) string {
	errObj, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}

func dataObject(t *testing.T, response map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "data is not an object: %v", response["data"])
	return data
}

func dataList(t *testing.T, response map[string]interface{}) []interface{} {
	t.Helper()
	data, ok := response["data"].([]interface{})
	require.True(t, ok, "data is not a list: %v", response["data"])
	return data
}
