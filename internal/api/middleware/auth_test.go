package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/ailab_server/internal/pkg/jwt"
	"github.com/qs3c/ailab_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authRouter() *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		response.Success(c, gin.H{"user_id": userID})
	})
	return router
}

func TestAuth_Success(t *testing.T) {
	token, err := jwt.GenerateToken(123, testJWTSecret, 24)
	require.NoError(t, err)

	for _, header := range []string{"Bearer " + token, "bearer " + token} {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		authRouter().ServeHTTP(w, req)

		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeSuccess, resp.Code)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(123), data["user_id"])
	}
}

func TestAuth_Rejected(t *testing.T) {
	valid, err := jwt.GenerateToken(123, testJWTSecret, 24)
	require.NoError(t, err)
	otherSecret, err := jwt.GenerateToken(123, "another-secret", 24)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "请提供认证信息"},
		{"no scheme", valid, "认证格式错误"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "认证格式错误"},
		{"empty token", "Bearer ", "认证格式错误"},
		{"garbage token", "Bearer not.a.token", "认证失败"},
		{"wrong secret", "Bearer " + otherSecret, "认证失败"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			authRouter().ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, response.CodeAuthFailed, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	claims := jwt.Claims{
		UserID: 123,
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  gojwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	authRouter().ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
	assert.Equal(t, "登录已过期，请重新登录", resp.Message)
}

func TestGetUserID(t *testing.T) {
	t.Run("not set", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		_, ok := GetUserID(c)
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserIDKey, "123")
		_, ok := GetUserID(c)
		assert.False(t, ok)
	})

	t.Run("int64", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(UserIDKey, int64(42))
		id, ok := GetUserID(c)
		assert.True(t, ok)
		assert.Equal(t, int64(42), id)
	})
}
