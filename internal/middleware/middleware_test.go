package middleware

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-scheduler/internal/config"
	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
	"github.com/jwalitptl/clinic-scheduler/pkg/httputil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator(config.JWTConfig{Secret: "s3cret", Issuer: "clinic-scheduler"})
	userID, businessID := uuid.New(), uuid.New()

	r := gin.New()
	r.GET("/me", auth.Authenticate(), func(c *gin.Context) {
		scope, ok := ScopeFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"user":     scope.UserID,
			"business": scope.BusinessID,
			"role":     scope.Role,
		})
	})

	token, err := auth.Sign(userID, businessID, model.RoleDoctor, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"`+userID.String()+`","business":"`+businessID.String()+`","role":"doctor"}`, w.Body.String())

	other := NewAuthenticator(config.JWTConfig{Secret: "other", Issuer: "clinic-scheduler"})
	forged, err := other.Sign(userID, businessID, model.RoleAdmin, time.Hour)
	require.NoError(t, err)
	expired, err := auth.Sign(userID, businessID, model.RoleDoctor, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + token},
		{"bad signature", "Bearer " + forged},
		{"expired", "Bearer " + expired},
		{"garbage", "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "unauthorized", decode(t, w).Code)
		})
	}
}

func TestAuthenticateRequiresIssuer(t *testing.T) {
	auth := NewAuthenticator(config.JWTConfig{Secret: "s3cret", Issuer: "clinic-scheduler"})
	foreign := NewAuthenticator(config.JWTConfig{Secret: "s3cret", Issuer: "someone-else"})

	token, err := foreign.Sign(uuid.New(), uuid.New(), model.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = auth.Parse(token)
	assert.Error(t, err)
}

func TestRequestIDPropagation(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := serve(r, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(w.Header().Get(HeaderXRequestID))
	assert.NoError(t, err)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()), Recovery())
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "internal server error", resp.Message)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(errors.NewSchedulingConflict(""))
	})
	r.GET("/written", func(c *gin.Context) {
		c.String(http.StatusTeapot, "ok")
		_ = c.Error(stderrors.New("ignored"))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "scheduling_conflict", decode(t, w).Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, stderrors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewLocalLimiter(1, 2)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, http.StatusOK, serve(r, other).Code, "buckets are per client")

	open := gin.New()
	open.Use(RateLimit(failingLimiter{}))
	open.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(open, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestScriptCount(t *testing.T) {
	n, err := scriptCount(int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = scriptCount("7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = scriptCount(3.5)
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"https://clinic.example"})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://clinic.example")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://clinic.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(16))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"this body is far too long"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
