package auth_test

import (
	"context"
	"testing"

	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/database/models"
	"github.com/hugh/go-accounts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Login(t *testing.T) {
	tc := testutil.NewTestContext(t)
	svc := auth.NewService(tc.Factory, tc.JWTService)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		resp, err := svc.Login(ctx, auth.LoginInput{Email: tc.Member.PrimaryEmailAddress, Password: "testpassword123"})
		require.NoError(t, err)
		assert.Equal(t, tc.Member.ID, resp.User.ID)

		claims, err := tc.JWTService.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, tc.Member.PrimaryEmailAddress, claims.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, auth.LoginInput{Email: tc.Member.PrimaryEmailAddress, Password: "nope"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, auth.LoginInput{Email: "ghost@example.com", Password: "testpassword123"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("user without password", func(t *testing.T) {
		require.NoError(t, tc.DB.Model(&models.User{}).Where("id = ?", tc.Admin.ID).Update("password", nil).Error)

		_, err := svc.Login(ctx, auth.LoginInput{Email: tc.Admin.PrimaryEmailAddress, Password: ""})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("disabled user", func(t *testing.T) {
		require.NoError(t, tc.DB.Model(&models.User{}).Where("id = ?", tc.Member.ID).Update("disabled", true).Error)

		_, err := svc.Login(ctx, auth.LoginInput{Email: tc.Member.PrimaryEmailAddress, Password: "testpassword123"})
		assert.ErrorIs(t, err, auth.ErrInactiveUser)

		_, err = svc.Login(ctx, auth.LoginInput{Email: tc.Member.PrimaryEmailAddress, Password: "bad"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}
