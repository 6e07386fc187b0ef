package models

import "time"

// User represents a platform user observed as a member of a monitored
// channel, i.e. a potential forward recipient.
type User struct {
	ID         int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccessHash int64  `json:"-"`
	FirstName  string `gorm:"size:255" json:"first_name,omitempty"`
	LastName   string `gorm:"size:255" json:"last_name,omitempty"`
	Username   string `gorm:"size:255;index" json:"username,omitempty"`
	Phone      string `gorm:"size:32" json:"phone,omitempty"`
	IsBot      bool   `gorm:"default:false" json:"is_bot"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// DisplayName returns a human-readable name for the user.
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Phone
	}
}

// OperatorRole represents the role of a control-plane operator.
type OperatorRole string

const (
	// RoleAdmin is a regular operator.
	RoleAdmin OperatorRole = "admin"
	// RoleSuperAdmin is an operator with full permissions.
	RoleSuperAdmin OperatorRole = "super_admin"
)

// IsValid checks if the role is a valid OperatorRole.
func (r OperatorRole) IsValid() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Operator is a control-plane administrator. Active operators are excluded
// from fan-out regardless of channel membership.
type Operator struct {
	UserID   int64        `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Role     OperatorRole `gorm:"default:admin;size:32" json:"role"`
	IsActive bool         `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Operator.
func (Operator) TableName() string {
	return "operators"
}
