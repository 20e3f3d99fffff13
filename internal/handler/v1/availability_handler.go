package v1

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/gin-gonic/gin"
)

type AvailabilityHandler struct {
	svc         *service.AvailabilityService
	admin       *service.AdminService
	slotMinutes int
	loc         *time.Location
}

func NewAvailabilityHandler(svc *service.AvailabilityService, admin *service.AdminService, slotMinutes int, loc *time.Location) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, admin: admin, slotMinutes: slotMinutes, loc: loc}
}

type conflictsResponse struct {
	Available bool              `json:"available"`
	Conflicts []*ConflictDetail `json:"conflicts"`
}

// Slots handles GET /gurujis/:id/availability?date=&slot_minutes=.
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	date, ok := queryDate(c, "date", h.loc)
	if !ok {
		return
	}

	minutes := h.slotMinutes
	if raw := c.Query("slot_minutes"); raw != "" {
		// Out-of-range values are rejected by the service, not defaulted.
		minutes = parseQueryInt(c, "slot_minutes", -1)
	}

	slots, err := h.svc.GetAvailableSlots(c.Request.Context(), id, date, minutes)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, slots)
}

// Conflicts handles GET /gurujis/:id/conflicts?date=&start=HH:MM&end=HH:MM&exclude_id=.
func (h *AvailabilityHandler) Conflicts(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	excludeID, ok := parseOptionalUUID(c, "exclude_id")
	if !ok {
		return
	}
	date, start, end, err := intervalFields(c.Query("date"), c.Query("start"), c.Query("end"), h.loc)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	found, err := h.svc.FindConflicts(c.Request.Context(), id, date, start, end, excludeID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, conflictsResponse{Available: len(found) == 0, Conflicts: conflictDetails(found)})
}

// Practitioners handles GET /gurujis.
func (h *AvailabilityHandler) Practitioners(c *gin.Context) {
	users, err := h.admin.ListPractitioners(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, users)
}

func conflictDetails(found []*appointment.Appointment) []*ConflictDetail {
	out := make([]*ConflictDetail, 0, len(found))
	for _, a := range found {
		out = append(out, &ConflictDetail{AppointmentID: a.ID, StartTime: a.StartTime, EndTime: a.EndTime, Status: a.Status})
	}
	return out
}
