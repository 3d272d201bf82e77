package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response wraps all API responses
type Response struct {
	Status     string              `json:"status"`
	Message    string              `json:"message,omitempty"`
	Code       string              `json:"code,omitempty"`
	Data       interface{}         `json:"data,omitempty"`
	Errors     []errors.FieldError `json:"errors,omitempty"`
	Pagination *Pagination         `json:"pagination,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
	TotalPage int `json:"total_pages"`
}

// RespondWithSuccess sends a 200 response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusOK, data)
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	RespondWithStatus(c, http.StatusCreated, data)
}

func RespondWithStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: StatusSuccess,
		Data:   data,
	})
}

// RespondWithMessage sends a success response without a body
func RespondWithMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{
		Status:  StatusSuccess,
		Message: message,
	})
}

// RespondWithError sends an error response. Errors that are not AppErrors
// are reported as internal errors and their detail is only logged.
func RespondWithError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	status := appErr.StatusCode()

	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Status:  StatusError,
		Message: appErr.Message,
		Code:    appErr.Code.String(),
		Errors:  appErr.Fields,
	})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	c.JSON(http.StatusOK, Response{
		Status: StatusSuccess,
		Data:   data,
		Pagination: &Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPages,
		},
	})
}
