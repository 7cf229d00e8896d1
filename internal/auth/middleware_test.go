package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func guardedRouter(t *testing.T) (*gin.Engine, *string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var seenUser string
	r := gin.New()
	r.GET("/protegida", RequireUser("secret", "backend-asist"), func(c *gin.Context) {
		seenUser = c.GetString(CtxUserID)
		c.Status(http.StatusOK)
	})
	return r, &seenUser
}

func TestRequireUserMissingToken(t *testing.T) {
	r, _ := guardedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protegida", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestRequireUserInvalidToken(t *testing.T) {
	r, _ := guardedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protegida", nil)
	req.Header.Set("Authorization", "Bearer no-es-un-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", w.Code)
	}
}

func TestRequireUserValidToken(t *testing.T) {
	r, seenUser := guardedRouter(t)

	token, _, err := Issue("user-7", "Ana", "ana@example.com", "backend-asist", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protegida", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}
	if *seenUser != "user-7" {
		t.Errorf("handler must see the decoded user id, got %q", *seenUser)
	}
}
