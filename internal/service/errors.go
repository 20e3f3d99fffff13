package service

import (
	"errors"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/google/uuid"
)

var ErrForbidden = errors.New("forbidden: insufficient permissions")

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// Caller identifies who is acting, for access checks and the audit trail.
type Caller struct {
	ID        uuid.UUID
	Role      domain.Role
	IPAddress string
	RequestID string
}

// SystemCaller is used by background jobs.
var SystemCaller = Caller{ID: uuid.Nil, Role: domain.RoleAdmin, RequestID: "system"}

type AuditEntry struct {
	Caller       Caller
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	Changes      string
}
