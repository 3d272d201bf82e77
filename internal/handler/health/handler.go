package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker reports whether one dependency is reachable.
type Checker func(ctx context.Context) error

type Handler struct {
	checks  map[string]Checker
	timeout time.Duration
}

func NewHandler(checks map[string]Checker) *Handler {
	if checks == nil {
		checks = map[string]Checker{}
	}
	return &Handler{checks: checks, timeout: 2 * time.Second}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// ReadinessCheck runs every dependency check and reports DOWN when any of
// them fails.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "UP", http.StatusOK
	components := make(gin.H, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status, code = "DOWN", http.StatusServiceUnavailable
			components[name] = gin.H{"status": "DOWN", "reason": err.Error()}
			continue
		}
		components[name] = gin.H{"status": "UP"}
	}
	c.JSON(code, gin.H{"status": status, "components": components})
}
