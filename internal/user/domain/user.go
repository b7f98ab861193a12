package domain

import (
	"errors"
	"time"
)

// User is an admin-portal account. All users are staff; Role decides what they
// may touch.
type User struct {
	ID               string
	Email            string
	Name             string
	Role             Role
	PasswordHash     string
	Phone            string // optional; OTP delivery target when 2FA is enrolled
	TwoFactorEnabled bool
	Status           UserStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Role is the coarse staff role.
type Role string

const (
	// RoleSuperAdmin may additionally manage policy config and read audit logs.
	RoleSuperAdmin Role = "superadmin"
	// RoleEditor may create and mutate announcements (subject to the policy gate).
	RoleEditor Role = "editor"
	// RoleReviewer may decide approval requests; also has editor rights.
	RoleReviewer Role = "reviewer"
)

// Permissions returns the permission strings granted by the user's role.
// Carried on ActorContext so the policy gate stays a function of its inputs.
func (u *User) Permissions() []string {
	switch u.Role {
	case RoleSuperAdmin:
		return []string{"announcements:write", "approvals:decide", "policy:manage", "audit:read"}
	case RoleReviewer:
		return []string{"announcements:write", "approvals:decide"}
	case RoleEditor:
		return []string{"announcements:write"}
	default:
		return nil
	}
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	switch u.Role {
	case RoleSuperAdmin, RoleEditor, RoleReviewer:
	default:
		return errors.New("invalid role")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
