package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		checks map[string]Checker
		code   int
		status string
	}{
		{"no dependencies", nil, http.StatusOK, "UP"},
		{"all up", map[string]Checker{
			"database": func(context.Context) error { return nil },
		}, http.StatusOK, "UP"},
		{"redis down", map[string]Checker{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}, http.StatusServiceUnavailable, "DOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewHandler(tt.checks).RegisterRoutes(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.code, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func TestLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(map[string]Checker{
		"database": func(context.Context) error { return errors.New("down") },
	}).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
