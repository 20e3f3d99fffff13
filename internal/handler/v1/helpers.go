package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/consultation"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/queue"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

// ConflictDetail is the public view of an appointment blocking a booking.
type ConflictDetail struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	Status        appointment.Status `json:"status"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	var conflict *appointment.ConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   appointment.ErrSlotUnavailable.Error(),
			Code:    "SLOT_UNAVAILABLE",
			Details: conflictDetails(conflict.Conflicts),
		})
		return
	}

	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, appointment.ErrPractitionerNotFound),
		errors.Is(err, queue.ErrEntryNotFound),
		errors.Is(err, consultation.ErrSessionNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, appointment.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "SLOT_UNAVAILABLE"})

	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, consultation.ErrSessionExists),
		errors.Is(err, queue.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})

	case errors.Is(err, queue.ErrQueueEmpty):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "QUEUE_EMPTY"})

	case errors.Is(err, appointment.ErrInvalidInterval),
		errors.Is(err, appointment.ErrOutsideCalendarDay),
		errors.Is(err, appointment.ErrScheduledInPast),
		errors.Is(err, appointment.ErrInvalidPriority),
		errors.Is(err, appointment.ErrInvalidStatus),
		errors.Is(err, appointment.ErrInvalidSlotDuration),
		errors.Is(err, appointment.ErrPractitionerRequired),
		errors.Is(err, appointment.ErrNotReschedulable),
		errors.Is(err, queue.ErrInvalidEntryState),
		errors.Is(err, queue.ErrNoPractitioner),
		errors.Is(err, consultation.ErrSessionClosed),
		errors.Is(err, consultation.ErrSessionOpen),
		errors.Is(err, consultation.ErrEmptyAddendum):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_TRANSITION"})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalUUID reads a query parameter; an empty value yields nil.
func parseOptionalUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + key + ": must be a valid UUID"})
		return nil, false
	}
	return &id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
}

// parseClock places an HH:MM wall-clock time on date in loc.
func parseClock(date time.Time, raw string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

// queryDate reads a YYYY-MM-DD query parameter, defaulting to today in loc.
func queryDate(c *gin.Context, key string, loc *time.Location) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), true
	}
	date, err := parseDate(raw, loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + key + ": expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

// intervalFields parses the date, start and end strings shared by booking
// and rescheduling requests.
func intervalFields(date, start, end string, loc *time.Location) (day, from, to time.Time, err error) {
	var fields []string
	day, derr := parseDate(date, loc)
	if derr != nil {
		fields = append(fields, "date must be YYYY-MM-DD")
	}
	if derr == nil {
		var serr, eerr error
		if from, serr = parseClock(day, start, loc); serr != nil {
			fields = append(fields, "start_time must be HH:MM")
		}
		if to, eerr = parseClock(day, end, loc); eerr != nil {
			fields = append(fields, "end_time must be HH:MM")
		}
	}
	if len(fields) > 0 {
		return time.Time{}, time.Time{}, time.Time{}, &service.ValidationError{Fields: fields}
	}
	return day, from, to, nil
}

func callerFrom(c *gin.Context) service.Caller {
	caller, _ := middleware.GetCaller(c)
	return caller
}
