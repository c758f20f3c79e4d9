package model

import (
    "strings"
    "time"
)

// Role names as stored in users.role and carried in the JWT "role" claim.
type Role string

const (
    RoleAdmin    Role = "ADMIN"
    RoleStaff    Role = "STAFF"
    RoleLecturer Role = "LECTURER"
    RoleStudent  Role = "STUDENT"
)

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
    switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
    case RoleAdmin, RoleStaff, RoleLecturer, RoleStudent:
        return r, true
    }
    return "", false
}

// Capability is a single permission checked by the services.
type Capability int

const (
    CapRequestReservation Capability = iota
    CapReviewReservation
    CapViewAllReservations
    CapManageLabs
    CapSetLabStatus
    CapManageTimetable
    CapReportIssue
    CapManageIssues
)

var roleCapabilities = map[Role][]Capability{
    RoleAdmin: {
        CapRequestReservation, CapReviewReservation, CapViewAllReservations,
        CapManageLabs, CapSetLabStatus, CapManageTimetable,
        CapReportIssue, CapManageIssues,
    },
    RoleStaff: {
        CapRequestReservation, CapReviewReservation, CapViewAllReservations,
        CapSetLabStatus, CapReportIssue, CapManageIssues,
    },
    RoleLecturer: {CapRequestReservation, CapReportIssue},
    RoleStudent:  {CapRequestReservation, CapReportIssue},
}

// Can reports whether the role grants c.
func (r Role) Can(c Capability) bool {
    for _, have := range roleCapabilities[r] {
        if have == c {
            return true
        }
    }
    return false
}

// Actor is the authenticated identity on whose behalf an operation runs.
// Handlers build it from the access token and pass it explicitly.
type Actor struct {
    UserID uint64
    Role   Role
}

func (a Actor) Can(c Capability) bool { return a.Role.Can(c) }

// User represents a row in the `users` table.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    FullName     string    // users.full_name
    PasswordHash string    // users.password_hash
    Role         Role      // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
