package v1

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	svc *service.QueueService
	loc *time.Location
}

func NewQueueHandler(svc *service.QueueService, loc *time.Location) *QueueHandler {
	return &QueueHandler{svc: svc, loc: loc}
}

// List handles GET /queue/:gurujiId?date=.
func (h *QueueHandler) List(c *gin.Context) {
	gurujiID, ok := parseUUID(c, "gurujiId")
	if !ok {
		return
	}
	date, ok := queryDate(c, "date", h.loc)
	if !ok {
		return
	}

	entries, err := h.svc.ListQueue(c.Request.Context(), gurujiID, date, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, entries)
}

// CallNext handles POST /queue/:gurujiId/next?date=.
func (h *QueueHandler) CallNext(c *gin.Context) {
	gurujiID, ok := parseUUID(c, "gurujiId")
	if !ok {
		return
	}
	date, ok := queryDate(c, "date", h.loc)
	if !ok {
		return
	}

	entry, err := h.svc.CallNext(c.Request.Context(), gurujiID, date, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, entry)
}

func (h *QueueHandler) Skip(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	entry, err := h.svc.Skip(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, entry)
}
