package v1

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/report"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AdminHandler struct {
	admin     *service.AdminService
	dashboard *service.DashboardService
	loc       *time.Location
	retention time.Duration
}

func NewAdminHandler(admin *service.AdminService, dashboard *service.DashboardService, loc *time.Location, retention time.Duration) *AdminHandler {
	return &AdminHandler{admin: admin, dashboard: dashboard, loc: loc, retention: retention}
}

type registerUserRequest struct {
	ID       uuid.UUID `json:"id" binding:"required"`
	Email    string    `json:"email" binding:"required"`
	FullName string    `json:"full_name" binding:"required,max=200"`
	Phone    string    `json:"phone" binding:"max=30"`
	Role     string    `json:"role" binding:"required"`
}

// Summary handles GET /dashboard/summary?date=&guruji_id=.
func (h *AdminHandler) Summary(c *gin.Context) {
	date, ok := queryDate(c, "date", h.loc)
	if !ok {
		return
	}
	gurujiID, ok := parseOptionalUUID(c, "guruji_id")
	if !ok {
		return
	}

	summary, err := h.dashboard.Summary(c.Request.Context(), date, gurujiID, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, summary)
}

// PurgeCancelled handles DELETE /admin/appointments/cancelled?older_than_days=.
// Without the parameter the configured retention applies.
func (h *AdminHandler) PurgeCancelled(c *gin.Context) {
	retention := h.retention
	if days := parseQueryInt(c, "older_than_days", 0); days > 0 {
		retention = time.Duration(days) * 24 * time.Hour
	}

	deleted, err := h.admin.PurgeCancelled(c.Request.Context(), time.Now().In(h.loc).Add(-retention), callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": deleted})
}

// Export handles GET /admin/reports/appointments.xlsx?from=&to=.
func (h *AdminHandler) Export(c *gin.Context) {
	from, ok := queryDate(c, "from", h.loc)
	if !ok {
		return
	}
	to, ok := queryDate(c, "to", h.loc)
	if !ok {
		return
	}

	// Rendered into memory first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := h.admin.ExportAppointments(c.Request.Context(), from, to, &buf, callerFrom(c)); err != nil {
		respondServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("appointments_%s_%s.xlsx", from.Format(dateLayout), to.Format(dateLayout))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

func (h *AdminHandler) RegisterUser(c *gin.Context) {
	var req registerUserRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := h.admin.RegisterUser(c.Request.Context(), &service.RegisterUserCommand{
		ID:       req.ID,
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     domain.Role(req.Role),
	}, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, u)
}
