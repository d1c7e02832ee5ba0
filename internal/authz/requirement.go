package authz

import (
	"github.com/google/uuid"
)

// Caller is the authenticated principal making a request.
type Caller struct {
	UserID      uuid.UUID
	Permissions map[string]bool
}

func NewCaller(userID uuid.UUID, permissions []string) Caller {
	set := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		set[p] = true
	}
	return Caller{UserID: userID, Permissions: set}
}

func (c Caller) Has(permissions ...string) bool {
	for _, p := range permissions {
		if !c.Permissions[p] {
			return false
		}
	}
	return true
}

// Params exposes the route parameters of the request being authorized.
type Params interface {
	Param(name string) string
}

// Requirement decides whether a caller may proceed.
type Requirement interface {
	Allows(caller Caller, params Params) bool
}

// Static requires every listed permission.
type Static []string

func (s Static) Allows(caller Caller, _ Params) bool {
	return caller.Has(s...)
}

// Dynamic computes the decision from the caller and the route.
type Dynamic func(caller Caller, params Params) bool

func (d Dynamic) Allows(caller Caller, params Params) bool {
	return d(caller, params)
}

// SelfOr allows the caller when the user id in route parameter param is
// their own, and otherwise requires permissions.
func SelfOr(param string, permissions ...string) Requirement {
	return Dynamic(func(caller Caller, params Params) bool {
		if id, err := uuid.Parse(params.Param(param)); err == nil && id == caller.UserID {
			return true
		}
		return caller.Has(permissions...)
	})
}

// NeedsPermissions reports whether evaluating r requires loading the
// caller's permissions. Empty static requirements do not.
func NeedsPermissions(r Requirement) bool {
	if s, ok := r.(Static); ok {
		return len(s) > 0
	}
	return true
}
