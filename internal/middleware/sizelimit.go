package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
	"github.com/jwalitptl/clinic-scheduler/pkg/httputil"
)

// SizeLimit rejects bodies that declare more than max bytes and caps the
// reader for those that do not declare a length.
func SizeLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > max {
			httputil.RespondWithError(c, errors.NewBadRequest(
				fmt.Sprintf("request body exceeds %d bytes", max), nil))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}
