package authorization

import (
	"context"
	"errors"
	"strings"

	authdomain "github.com/smallbiznis/levy/internal/auth/domain"
)

// Scope bounds which payments a listing or lookup may return.
type Scope string

const (
	ScopeSelf Scope = "self"
	ScopeAll  Scope = "all"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidScope  = errors.New("invalid_scope")
)

// ParseScope accepts "", "self" and "all".
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return "", nil
	case ScopeSelf:
		return ScopeSelf, nil
	case ScopeAll:
		return ScopeAll, nil
	default:
		return "", ErrInvalidScope
	}
}

type Service interface {
	Authorize(ctx context.Context, principal authdomain.Principal, object string, action string) error
	Can(ctx context.Context, principal authdomain.Principal, object string, action string) (bool, error)
	// ResolveScope returns the effective scope for requested. An empty request
	// resolves to the broadest scope the principal holds.
	ResolveScope(ctx context.Context, principal authdomain.Principal, requested Scope) (Scope, error)
}
