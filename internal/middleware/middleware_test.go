package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/quakealert/internal/config"
)

type stubVerifier map[string]*auth.Token

func (s stubVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if tok, ok := s[idToken]; ok {
		return tok, nil
	}
	return nil, errors.New("invalid token")
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestVerifyToken(t *testing.T) {
	verifier := stubVerifier{"good": {UID: "uid-1", Claims: map[string]interface{}{"email": "a@example.com", "name": "Ana"}}}
	r := gin.New()
	r.Use(NewAuthMiddleware(verifier, zap.NewNop()).VerifyToken())
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"id":    c.GetString(ContextUserID),
			"email": c.GetString(ContextUserEmail),
			"name":  c.GetString(ContextUserDisplayName),
		})
	})
	r.POST("/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name   string
		method string
		target string
		header string
		want   int
	}{
		{"bearer", http.MethodGet, "/me", "Bearer good", http.StatusOK},
		{"lowercase scheme", http.MethodGet, "/me", "bearer good", http.StatusOK},
		{"missing", http.MethodGet, "/me", "", http.StatusUnauthorized},
		{"malformed", http.MethodGet, "/me", "Token good", http.StatusUnauthorized},
		{"invalid", http.MethodGet, "/me", "Bearer bad", http.StatusUnauthorized},
		{"query token on GET", http.MethodGet, "/me?access_token=good", "", http.StatusOK},
		{"query token on POST", http.MethodPost, "/me?access_token=good", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"id":"uid-1","email":"a@example.com","name":"Ana"}`, w.Body.String())
			}
		})
	}
}

func TestRecoveryAndLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(RequestLogger(logger), RecoveryMiddleware(logger))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","code":"internal"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?access_token=secret", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
	requests := logs.FilterMessage("Incoming Request").All()
	require.Len(t, requests, 2)
	assert.Equal(t, zap.ErrorLevel, requests[0].Level)
	assert.Equal(t, zap.InfoLevel, requests[1].Level)
	assert.Equal(t, "access_token=REDACTED", requests[1].ContextMap()["query"])
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(&config.Config{ClientURL: "http://localhost:3000, https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Panics(t, func() { CORSMiddleware(&config.Config{}) })
}
