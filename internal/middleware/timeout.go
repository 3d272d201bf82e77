package middleware

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
	"github.com/jwalitptl/clinic-scheduler/pkg/httputil"
)

// Timeout bounds the request context. Handlers observe the deadline through
// their context; a request that ran out of time without answering gets 504.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			httputil.RespondWithError(c, errors.NewTimeout(ctx.Err()))
		}
	}
}
