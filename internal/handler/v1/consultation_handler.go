package v1

import (
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/consultation"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConsultationHandler struct {
	svc *service.ConsultationService
}

func NewConsultationHandler(svc *service.ConsultationService) *ConsultationHandler {
	return &ConsultationHandler{svc: svc}
}

type startConsultationRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
}

type endConsultationRequest struct {
	Notes     string   `json:"notes" binding:"max=10000"`
	Guidance  string   `json:"guidance" binding:"max=10000"`
	Practices []string `json:"practices" binding:"max=50,dive,max=200"`
}

type addendumRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

func (h *ConsultationHandler) Start(c *gin.Context) {
	var req startConsultationRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.svc.Start(c.Request.Context(), req.AppointmentID, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, session)
}

func (h *ConsultationHandler) End(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req endConsultationRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.svc.End(c.Request.Context(), id, &consultation.EndSessionCommand{
		Notes:     req.Notes,
		Guidance:  req.Guidance,
		Practices: req.Practices,
	}, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, session)
}

func (h *ConsultationHandler) AddAddendum(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req addendumRequest
	if !bindJSON(c, &req) {
		return
	}

	caller := callerFrom(c)
	addendum, err := h.svc.AddAddendum(c.Request.Context(), &consultation.AddAddendumCommand{
		SessionID: id,
		Content:   req.Content,
		CreatedBy: caller.ID,
	}, caller)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, addendum)
}

func (h *ConsultationHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	session, err := h.svc.Get(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, session)
}
