package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "towbook-service/internal/pkg/errors"
	"towbook-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier map[string]*jwt.Claims

func (s stubVerifier) VerifyAccessToken(token string) (*jwt.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func claims(sub string, roles ...string) *jwt.Claims {
	return &jwt.Claims{Roles: roles, RegisteredClaims: gojwt.RegisteredClaims{Subject: sub, ID: "jti-" + sub}}
}

func newAuthRouter() *gin.Engine {
	m := NewAuthMiddleware(stubVerifier{
		"customer": claims("alice", "customer"),
		"admin":    claims("ops", "admin"),
	})

	r := gin.New()
	whoami := func(c *gin.Context) {
		id, _ := GetIdentityID(c)
		c.String(http.StatusOK, id)
	}
	r.GET("/optional", m.OptionalAuth(), whoami)
	r.GET("/required", m.Auth(), whoami)
	r.GET("/admin", append(m.AdminOnly(), whoami)...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter()

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
		wantBody string
	}{
		{"optional anonymous", "/optional", "", http.StatusOK, ""},
		{"optional with identity", "/optional", "customer", http.StatusOK, "alice"},
		{"optional bad token", "/optional", "forged", http.StatusUnauthorized, "unauthorized access"},
		{"required missing", "/required", "", http.StatusUnauthorized, "unauthorized access"},
		{"required ok", "/required", "customer", http.StatusOK, "alice"},
		{"admin as customer", "/admin", "customer", http.StatusForbidden, "forbidden"},
		{"admin ok", "/admin", "admin", http.StatusOK, "ops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			switch {
			case tt.wantBody == "":
			case tt.wantCode == http.StatusOK:
				assert.Equal(t, tt.wantBody, w.Body.String())
			default:
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

type countingLimiter struct {
	counts map[string]int64
	err    error
}

func (l *countingLimiter) Allow(_ context.Context, key string, max int64, _ time.Duration) (bool, int64, error) {
	if l.err != nil {
		return false, 0, l.err
	}
	l.counts[key]++
	remaining := max - l.counts[key]
	if remaining < 0 {
		remaining = 0
	}
	return l.counts[key] <= max, remaining, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int64{}}
	r := gin.New()
	r.POST("/drafts", RateLimit(limiter, "drafts", 2, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/drafts", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if i == 2 {
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int64(3), limiter.counts["drafts:ip:203.0.113.7"])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: fmt.Errorf("%w: redis down", xerrors.ErrUnavailable)}
	r := gin.New()
	r.POST("/drafts", RateLimit(limiter, "drafts", 1, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/drafts", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRateLimit_UnexpectedError(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("bad window")}
	r := gin.New()
	r.POST("/drafts", RateLimit(limiter, "drafts", 1, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/drafts", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://book.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://book.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://book.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware(zap.NewNop()), RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}
