package appointment

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/middleware"
	"github.com/jwalitptl/clinic-scheduler/internal/model"
	svc "github.com/jwalitptl/clinic-scheduler/internal/service/appointment"
	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
	"github.com/jwalitptl/clinic-scheduler/pkg/httputil"
	"github.com/jwalitptl/clinic-scheduler/pkg/validator"
)

// Service is the scheduling surface the handler needs.
type Service interface {
	CreateAppointment(ctx context.Context, scope model.Scope, req model.CreateAppointmentRequest) (*model.Appointment, error)
	GetAppointment(ctx context.Context, scope model.Scope, id uuid.UUID) (*model.Appointment, error)
	ListAppointments(ctx context.Context, scope model.Scope, filters model.AppointmentFilters) (*svc.ListResult, error)
	UpdateAppointment(ctx context.Context, scope model.Scope, id uuid.UUID, req model.UpdateAppointmentRequest) (*model.Appointment, error)
	Transition(ctx context.Context, scope model.Scope, id uuid.UUID, req model.UpdateStatusRequest) (*model.Appointment, error)
	Reschedule(ctx context.Context, scope model.Scope, id uuid.UUID, req model.RescheduleRequest) (*model.Appointment, error)
	DeleteAppointment(ctx context.Context, scope model.Scope, id uuid.UUID) error
	CheckAvailability(ctx context.Context, scope model.Scope, q model.AvailabilityQuery) (*model.Availability, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("/availability", h.CheckAvailability)
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.PATCH("/:id", h.UpdateAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.POST("/:id/reschedule", h.Reschedule)
		appointments.DELETE("/:id", h.DeleteAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validator.Translate(err))
		return
	}

	apt, err := h.service.CreateAppointment(c.Request.Context(), scope, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), scope, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var filters model.AppointmentFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		h.fail(c, validator.Translate(err))
		return
	}

	res, err := h.service.ListAppointments(c.Request.Context(), scope, filters)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithPagination(c, res.Appointments, res.Page, res.PageSize, res.Total)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validator.Translate(err))
		return
	}

	apt, err := h.service.UpdateAppointment(c.Request.Context(), scope, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validator.Translate(err))
		return
	}

	apt, err := h.service.Transition(c.Request.Context(), scope, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) Reschedule(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, validator.Translate(err))
		return
	}

	apt, err := h.service.Reschedule(c.Request.Context(), scope, id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.id(c)
	if !ok {
		return
	}

	if err := h.service.DeleteAppointment(c.Request.Context(), scope, id); err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithMessage(c, "appointment deleted")
}

func (h *Handler) CheckAvailability(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var q model.AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, validator.Translate(err))
		return
	}

	availability, err := h.service.CheckAvailability(c.Request.Context(), scope, q)
	if err != nil {
		h.fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, availability)
}

func (h *Handler) scope(c *gin.Context) (model.Scope, bool) {
	scope, ok := middleware.ScopeFrom(c)
	if !ok {
		h.fail(c, errors.Unauthorized(nil))
	}
	return scope, ok
}

func (h *Handler) id(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.fail(c, errors.NewBadRequest("invalid appointment ID", err))
		return uuid.Nil, false
	}
	return id, true
}

// fail records err on the context for the error middleware and answers
// with the error envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	httputil.RespondWithError(c, err)
}
