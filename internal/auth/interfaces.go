package auth

import (
	"context"

	"github.com/google/uuid"
)

// Authenticator defines the interface for user authentication operations.
type Authenticator interface {
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID uuid.UUID, email string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
