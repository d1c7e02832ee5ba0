package users

import "errors"

// Bad input.
var (
	ErrPasswordMismatch         = errors.New("password and confirmPassword do not match")
	ErrPrimaryEmailDeletion     = errors.New("the primary email cannot be deleted")
	ErrUnknownOrganization      = errors.New("unknown organization")
	ErrUnknownRole              = errors.New("unknown role")
	ErrUnknownUserEmail         = errors.New("unknown user email")
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
)

// Conflict.
var ErrEmailInUse = errors.New("email address already in use")

// Not found.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserEmailNotFound = errors.New("user email not found")
)
