package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerNeverLogsCredentials(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.POST("/subs", func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			t.Fatalf("handler read body: %v", err)
		}
		c.JSON(200, gin.H{"bytes": len(raw)})
	})

	body := `{"username":"john","password":"hunter2"}`
	req := httptest.NewRequest("POST", "/subs?page=1", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	for _, field := range entries[0].Context {
		if strings.Contains(field.String, "hunter2") {
			t.Fatalf("field %q leaked the request credential", field.Key)
		}
	}
}

func TestRequestLoggerLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/missing", func(c *gin.Context) { c.JSON(404, gin.H{}) })
	router.GET("/broken", func(c *gin.Context) { c.JSON(500, gin.H{}) })

	for _, path := range []string{"/missing", "/broken"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two log lines, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Fatalf("4xx should log at warn, got %v", entries[0].Level)
	}
	if entries[1].Level != zap.ErrorLevel {
		t.Fatalf("5xx should log at error, got %v", entries[1].Level)
	}
}
