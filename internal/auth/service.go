package auth

import (
	"context"
	"errors"

	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/database/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
)

type Service struct {
	uows *database.Factory
	jwt  *JWTService
}

func NewService(uows *database.Factory, jwt *JWTService) *Service {
	return &Service{uows: uows, jwt: jwt}
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string
	User  *models.User
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	uow := s.uows.New(ctx)
	defer uow.Close()

	user, err := uow.Users.GetUserByEmail(input.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	if user.Disabled {
		return nil, ErrInactiveUser
	}

	token, err := s.jwt.GenerateToken(user.ID, user.PrimaryEmailAddress)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  user,
	}, nil
}
