package v1

import (
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AppointmentHandler struct {
	svc *service.AppointmentService
	loc *time.Location
}

func NewAppointmentHandler(svc *service.AppointmentService, loc *time.Location) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, loc: loc}
}

type createAppointmentRequest struct {
	UserID    uuid.UUID  `json:"user_id"`
	GurujiID  *uuid.UUID `json:"guruji_id"`
	Date      string     `json:"date" binding:"required"`
	StartTime string     `json:"start_time" binding:"required"`
	EndTime   string     `json:"end_time" binding:"required"`
	Priority  string     `json:"priority"`
	Purpose   string     `json:"purpose" binding:"max=500"`
	Notes     string     `json:"notes" binding:"max=2000"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type rescheduleRequest struct {
	GurujiID  *uuid.UUID `json:"guruji_id"`
	Date      string     `json:"date" binding:"required"`
	StartTime string     `json:"start_time" binding:"required"`
	EndTime   string     `json:"end_time" binding:"required"`
}

type checkInRequest struct {
	Code string `json:"code" binding:"required"`
}

// Create handles POST /appointments.
func (h *AppointmentHandler) Create(c *gin.Context) {
	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	date, start, end, err := intervalFields(req.Date, req.StartTime, req.EndTime, h.loc)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	a, err := h.svc.CreateAppointment(c.Request.Context(), &appointment.CreateAppointmentCommand{
		UserID:    req.UserID,
		GurujiID:  req.GurujiID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Priority:  appointment.Priority(req.Priority),
		Purpose:   req.Purpose,
		Notes:     req.Notes,
	}, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, a)
}

// List handles GET /appointments?user_id=&guruji_id=&status=&from=&to=&page=&page_size=.
func (h *AppointmentHandler) List(c *gin.Context) {
	q := &appointment.ListAppointmentsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}

	var ok bool
	if q.UserID, ok = parseOptionalUUID(c, "user_id"); !ok {
		return
	}
	if q.GurujiID, ok = parseOptionalUUID(c, "guruji_id"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := appointment.Status(raw)
		q.Status = &status
	}
	for key, dst := range map[string]**time.Time{"from": &q.DateFrom, "to": &q.DateTo} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		d, err := parseDate(raw, h.loc)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid "+key+": expected YYYY-MM-DD")
			return
		}
		*dst = &d
	}

	page, err := h.svc.ListAppointments(c.Request.Context(), q, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, page)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	a, err := h.svc.GetAppointment(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) GetByCode(c *gin.Context) {
	a, err := h.svc.GetByCheckInCode(c.Request.Context(), c.Param("code"), callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

// UpdateStatus handles PATCH /appointments/:id/status.
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.UpdateStatus(c.Request.Context(), id, appointment.Status(req.Status), callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	// The body is optional.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.CancelAppointment(c.Request.Context(), id, req.Reason, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req rescheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	date, start, end, err := intervalFields(req.Date, req.StartTime, req.EndTime, h.loc)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	a, err := h.svc.Reschedule(c.Request.Context(), id, &appointment.RescheduleCommand{
		GurujiID:  req.GurujiID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}

// CheckIn handles POST /check-in with the code printed on the booking.
func (h *AppointmentHandler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.CheckIn(c.Request.Context(), req.Code, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, a)
}
