package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("a user with this id or email already exists")
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleGuruji      Role = "guruji"
	RoleUser        Role = "user"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RoleGuruji, RoleUser:
		return true
	}
	return false
}

// IsStaff reports whether the role manages appointments on behalf of others.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleCoordinator
}

// User mirrors an identity owned by the external auth provider. The ID is the
// provider's subject, so rows are registered rather than self-created.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Email    string `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName string `gorm:"column:full_name;type:varchar(200);not null" json:"full_name"`
	Phone    string `gorm:"column:phone;type:varchar(30)" json:"phone,omitempty"`
	Role     Role   `gorm:"column:role;type:varchar(30);not null;index" json:"role"`
	IsActive bool   `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
}

func (User) TableName() string {
	return "users"
}

type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionRead   AuditAction = "read"
	ActionUpdate AuditAction = "update"
	ActionDelete AuditAction = "delete"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(30);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID string `gorm:"column:request_id;type:varchar(50);index"`
	Changes   string `gorm:"column:changes;type:text"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID uuid.UUID `json:"sub"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}
