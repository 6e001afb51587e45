// Package domain contains the caller identity passed into the payment core.
package domain

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleTaxpayer Role = "taxpayer"
	RoleOfficer  Role = "officer"
	RoleAuditor  Role = "auditor"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid_token")
	ErrInvalidRole  = errors.New("invalid_role")
)

// ParseRole normalizes a role claim. Unknown roles are rejected.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleTaxpayer, RoleOfficer, RoleAuditor:
		return role, nil
	case "":
		return RoleTaxpayer, nil
	default:
		return "", ErrInvalidRole
	}
}

// Principal is the authenticated caller. It is passed explicitly into every
// payment and reconciliation operation.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

func (p Principal) Valid() bool {
	return strings.TrimSpace(p.UserID) != "" && p.Role != ""
}

// Subject is the authorization subject for the principal.
func (p Principal) Subject() string {
	return "user:" + p.UserID
}

// System is the principal used by background jobs.
func System() Principal {
	return Principal{UserID: "system", Role: RoleOfficer}
}

// IsSystem reports whether p acts for a background job rather than a person.
func (p Principal) IsSystem() bool {
	return p.UserID == System().UserID
}
