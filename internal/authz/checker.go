package authz

import (
	"context"

	"github.com/google/uuid"
)

// Invalidator drops whatever a Resolver remembers about a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type Checker struct {
	resolver Resolver
}

func NewChecker(resolver Resolver) *Checker {
	return &Checker{resolver: resolver}
}

// Allowed evaluates req for userID, loading permissions only when needed.
func (c *Checker) Allowed(ctx context.Context, userID uuid.UUID, req Requirement, params Params) (bool, error) {
	caller := Caller{UserID: userID}
	if NeedsPermissions(req) {
		perms, err := c.resolver.Permissions(ctx, userID)
		if err != nil {
			return false, err
		}
		caller = NewCaller(userID, perms)
	}
	return req.Allows(caller, params), nil
}
