package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/authz"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/database/models"
	"golang.org/x/sync/errgroup"
)

// Dispatcher starts delivery of a verification email.
type Dispatcher interface {
	SendVerificationEmail(ctx context.Context, email models.UserEmail) error
}

type Options struct {
	// Upper bound for a background dispatch batch.
	DispatchTimeout time.Duration
	// Parallel dispatches per batch.
	DispatchConcurrency int
}

type Service struct {
	uows        *database.Factory
	dispatcher  Dispatcher
	invalidator authz.Invalidator
	logger      *slog.Logger
	opts        Options
	now         func() time.Time

	inflight sync.WaitGroup
}

// NewService builds the user service. invalidator may be nil when
// permissions are not cached.
func NewService(uows *database.Factory, dispatcher Dispatcher, invalidator authz.Invalidator, logger *slog.Logger, opts Options) *Service {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	if opts.DispatchConcurrency <= 0 {
		opts.DispatchConcurrency = 4
	}
	return &Service{
		uows:        uows,
		dispatcher:  dispatcher,
		invalidator: invalidator,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}
}

type CreateInput struct {
	FirstName           string
	LastName            string
	Password            *string
	ConfirmPassword     *string
	PrimaryEmailAddress string
	OrganizationIDs     []uuid.UUID
}

type GeneralInput struct {
	FirstName string
	LastName  string
}

// Create registers a user together with a personal organization and a
// primary email record, then asks for that address to be verified.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	s.logger.Debug("creating user", "email", in.PrimaryEmailAddress)

	if !samePassword(in.Password, in.ConfirmPassword) {
		return nil, ErrPasswordMismatch
	}

	var hash *string
	if in.Password != nil {
		h, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		hash = &h
	}

	uow := s.uows.New(ctx)
	defer uow.Close()
	if err := uow.Begin(); err != nil {
		return nil, err
	}

	_, err := uow.Users.GetUserByEmail(in.PrimaryEmailAddress)
	switch {
	case err == nil:
		return nil, ErrEmailInUse
	case !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("checking email: %w", err)
	}

	orgs, err := uow.Organizations.GetOrganizationsByIDs(in.OrganizationIDs)
	if err != nil {
		return nil, mapNotFound(err, ErrUnknownOrganization)
	}

	personal, err := uow.Organizations.CreateOrganization(in.PrimaryEmailAddress, true)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		Password:            hash,
		PrimaryEmailAddress: in.PrimaryEmailAddress,
	}
	if err := uow.Users.CreateUser(user, append(orgs, *personal)); err != nil {
		return nil, mapDuplicate(err)
	}

	email, err := uow.UserEmails.CreateUserEmail(user.ID, in.PrimaryEmailAddress)
	if err != nil {
		return nil, err
	}
	if err := uow.Users.SetPrimaryUserEmail(user.ID, email); err != nil {
		return nil, mapDuplicate(err)
	}
	user.PrimaryEmailID = &email.ID

	if err := uow.Commit(); err != nil {
		return nil, mapDuplicate(err)
	}

	if err := s.dispatcher.SendVerificationEmail(ctx, *email); err != nil {
		s.logger.Error("failed to dispatch verification email",
			"user_id", user.ID, "user_email_id", email.ID, "error", err)
	}

	return user, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	uow := s.uows.New(ctx)
	defer uow.Close()

	user, err := uow.Users.GetUserByID(id)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return user, nil
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	uow := s.uows.New(ctx)
	defer uow.Close()
	return uow.Users.GetAllUsers()
}

func (s *Service) UpdateGeneral(ctx context.Context, id uuid.UUID, in GeneralInput) (*models.User, error) {
	s.logger.Debug("editing user general info", "user_id", id)

	var user *models.User
	err := s.uows.Transact(ctx, func(uow *database.UnitOfWork) error {
		var err error
		user, err = uow.Users.EditUser(id, map[string]interface{}{
			"first_name": in.FirstName,
			"last_name":  in.LastName,
		})
		return mapNotFound(err, ErrUserNotFound)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AddEmails creates or reuses the given addresses for the user. Each record
// that changed is sent a verification email in the background.
func (s *Service) AddEmails(ctx context.Context, userID uuid.UUID, inputs []database.UserEmailInput) error {
	s.logger.Debug("editing user emails", "user_id", userID, "count", len(inputs))

	var touched []models.UserEmail
	err := s.uows.Transact(ctx, func(uow *database.UnitOfWork) error {
		user, err := uow.Users.GetUserByID(userID)
		if err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}

		touched, err = uow.UserEmails.AddUserEmails(userID, inputs)
		if err != nil {
			return mapNotFound(err, ErrUnknownUserEmail)
		}

		// A readdressed primary record moves the primary address with it.
		for i := range touched {
			ue := &touched[i]
			if user.PrimaryEmailID != nil && *user.PrimaryEmailID == ue.ID && user.PrimaryEmailAddress != ue.Email {
				if err := uow.Users.SetPrimaryUserEmail(userID, ue); err != nil {
					return mapDuplicate(err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return mapDuplicate(err)
	}

	s.dispatchAsync(ctx, touched)
	return nil
}

// DeleteEmails soft-deletes the listed emails of a user. The primary email
// is never deleted; asking for it rejects the whole batch.
func (s *Service) DeleteEmails(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	s.logger.Debug("deleting user emails", "user_id", userID, "count", len(ids))

	return s.uows.Transact(ctx, func(uow *database.UnitOfWork) error {
		user, err := uow.Users.GetUserByID(userID)
		if err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		for _, id := range ids {
			if user.PrimaryEmailID != nil && *user.PrimaryEmailID == id {
				return ErrPrimaryEmailDeletion
			}
		}
		_, err = uow.UserEmails.DeleteUserEmails(ids, userID)
		return err
	})
}

func (s *Service) SetPrimaryEmail(ctx context.Context, userID, emailID uuid.UUID) error {
	s.logger.Debug("setting primary user email", "user_id", userID, "user_email_id", emailID)

	err := s.uows.Transact(ctx, func(uow *database.UnitOfWork) error {
		if _, err := uow.Users.GetUserByID(userID); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}

		email, err := uow.UserEmails.GetUserEmailByID(emailID)
		if err != nil {
			return mapNotFound(err, ErrUserEmailNotFound)
		}
		if email.UserID != userID {
			return ErrUserEmailNotFound
		}

		holder, err := uow.Users.GetUserByEmail(email.Email)
		switch {
		case err == nil && holder.ID != userID:
			return ErrEmailInUse
		case err != nil && !errors.Is(err, database.ErrNotFound):
			return err
		}

		return uow.Users.SetPrimaryUserEmail(userID, email)
	})
	return mapDuplicate(err)
}

func (s *Service) ReplaceOrganizations(ctx context.Context, userID uuid.UUID, orgIDs []uuid.UUID) error {
	s.logger.Debug("replacing user organizations", "user_id", userID, "count", len(orgIDs))

	return s.uows.Transact(ctx, func(uow *database.UnitOfWork) error {
		if _, err := uow.Users.GetUserByID(userID); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		orgs, err := uow.Organizations.GetOrganizationsByIDs(orgIDs)
		if err != nil {
			return mapNotFound(err, ErrUnknownOrganization)
		}
		return uow.Users.ReplaceUserOrganizations(userID, orgs)
	})
}

func (s *Service) ReplaceRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	s.logger.Debug("replacing user roles", "user_id", userID, "count", len(roleIDs))

	err := s.uows.Transact(ctx, func(uow *database.UnitOfWork) error {
		if _, err := uow.Users.GetUserByID(userID); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		roles, err := uow.Roles.GetRolesByIDs(roleIDs)
		if err != nil {
			return mapNotFound(err, ErrUnknownRole)
		}
		return uow.Users.ReplaceUserRoles(userID, roles)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) ListRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	uow := s.uows.New(ctx)
	defer uow.Close()

	if _, err := uow.Users.GetUserByID(userID); err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return uow.Users.GetUserRoles(userID)
}

// Delete soft-deletes and disables the user.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	s.logger.Debug("deleting user", "user_id", userID)

	uow := s.uows.New(ctx)
	defer uow.Close()

	deleted, err := uow.Users.DeleteUser(userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrUserNotFound
	}

	s.invalidate(ctx, userID)
	return nil
}

// VerifyEmail marks an email verified when token matches the one most
// recently sent to it. Verifying an already verified email succeeds.
func (s *Service) VerifyEmail(ctx context.Context, emailID uuid.UUID, token string) error {
	return s.uows.Transact(ctx, func(uow *database.UnitOfWork) error {
		email, err := uow.UserEmails.GetUserEmailByID(emailID)
		if err != nil {
			return mapNotFound(err, ErrUserEmailNotFound)
		}
		if email.Verified {
			return nil
		}

		now := s.now()
		if email.VerificationExpiresAt == nil || now.After(*email.VerificationExpiresAt) {
			return ErrInvalidVerificationToken
		}
		if !auth.CheckPassword(token, email.VerificationTokenHash) {
			return ErrInvalidVerificationToken
		}
		return uow.UserEmails.MarkVerified(email.ID, now)
	})
}

// Wait blocks until background dispatches have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// dispatchAsync sends verification emails without holding up the caller.
// Failures are logged per email.
func (s *Service) dispatchAsync(ctx context.Context, emails []models.UserEmail) {
	if len(emails) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(ctx, s.opts.DispatchTimeout)
		defer cancel()

		var g errgroup.Group
		g.SetLimit(s.opts.DispatchConcurrency)
		for _, email := range emails {
			email := email
			g.Go(func() error {
				if err := s.dispatcher.SendVerificationEmail(ctx, email); err != nil {
					s.logger.Error("failed to dispatch verification email",
						"user_id", email.UserID, "user_email_id", email.ID, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate cached permissions", "user_id", userID, "error", err)
	}
}

// samePassword compares by value; two absent passwords match.
func samePassword(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func mapNotFound(err, target error) error {
	if errors.Is(err, database.ErrNotFound) {
		return target
	}
	return err
}

func mapDuplicate(err error) error {
	if errors.Is(err, database.ErrDuplicate) {
		return ErrEmailInUse
	}
	return err
}
