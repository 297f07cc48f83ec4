package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newInternalTokenRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/metrics", InternalTokenAuth(token), func(c *gin.Context) {
		c.String(200, "ok")
	})
	return router
}

func TestInternalTokenAuthRejectsMissingToken(t *testing.T) {
	router := newInternalTokenRouter("s3cret")

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "192.0.2.10:4444"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != 401 {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestInternalTokenAuthAcceptsHeaderAndBearer(t *testing.T) {
	router := newInternalTokenRouter("s3cret")

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "192.0.2.10:4444"
	req.Header.Set("X-Internal-Token", "s3cret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 with header token, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "192.0.2.10:4444"
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 with bearer token, got %d", w.Code)
	}
}

func TestInternalTokenAuthAllowsLoopbackWithoutToken(t *testing.T) {
	router := newInternalTokenRouter("s3cret")

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200 from loopback, got %d", w.Code)
	}
}

func TestInternalTokenAuthRejectsWhenUnconfigured(t *testing.T) {
	router := newInternalTokenRouter("")

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.RemoteAddr = "192.0.2.10:4444"
	req.Header.Set("X-Internal-Token", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != 401 {
		t.Fatalf("expected 401 with empty configured token, got %d", w.Code)
	}
}
