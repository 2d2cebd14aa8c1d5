package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kristoman/standardgpt/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func runMiddleware(t *testing.T, mw gin.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	w := httptest.NewRecorder()
	r := gin.New()
	var seenUserID string
	r.Use(mw)
	r.GET("/", func(c *gin.Context) {
		seenUserID = UserIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(w, req)
	return w, seenUserID
}

func TestAuthMiddlewareWithNoSecretConfiguredAllowsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w, userID := runMiddleware(t, AuthMiddleware(""), req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if userID != "anonymous" {
		t.Fatalf("expected anonymous user id, got %q", userID)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w, _ := runMiddleware(t, AuthMiddleware("secret"), req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "exp": time.Now().Add(time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestAuthMiddlewareAcceptsValidBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "user-42"))

	w, userID := runMiddleware(t, AuthMiddleware("secret"), req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if userID != "user-42" {
		t.Fatalf("expected user-42, got %q", userID)
	}
}

func TestAuthMiddlewareAcceptsValidCookieToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: signToken(t, "secret", "user-7")})

	w, userID := runMiddleware(t, AuthMiddleware("secret"), req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if userID != "user-7" {
		t.Fatalf("expected user-7, got %q", userID)
	}
}

func TestAuthMiddlewareRejectsTokenSignedWithWrongSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "user-1"))

	w, _ := runMiddleware(t, AuthMiddleware("secret"), req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddlewareRejectsTokenMissingSubject(t *testing.T) {
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte("secret"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	w, _ := runMiddleware(t, AuthMiddleware("secret"), req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestUserIDFromContextDefaultsToAnonymous(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "anonymous" {
		t.Fatalf("expected anonymous, got %q", got)
	}
}

func TestUserIDFromContextReadsPopulatedValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), types.UserIDContextKey, "user-99")
	if got := UserIDFromContext(ctx); got != "user-99" {
		t.Fatalf("expected user-99, got %q", got)
	}
}
