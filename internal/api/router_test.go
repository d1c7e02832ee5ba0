package api_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hugh/go-accounts/internal/api"
	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/authz"
	"github.com/hugh/go-accounts/internal/testutil"
	"github.com/hugh/go-accounts/internal/users"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(t *testing.T) (*api.Router, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t, authz.All...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userService := users.NewService(tc.Factory, nil, nil, logger, users.Options{})
	router := api.NewRouter(api.RouterConfig{
		DB:            tc.DB,
		Logger:        logger,
		JWTService:    tc.JWTService,
		AuthService:   auth.NewService(tc.Factory, tc.JWTService),
		UserService:   userService,
		Checker:       authz.NewChecker(authz.NewDBResolver(tc.Factory)),
		RateLimitReqs: 100,
		RateLimitSecs: 60,
	})
	t.Cleanup(router.Close)
	t.Cleanup(userService.Wait)
	return router, tc
}

func TestRouter(t *testing.T) {
	router, tc := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"health", "GET", "/health", "", http.StatusOK},
		{"ready", "GET", "/ready", "", http.StatusOK},
		{"users without token", "GET", "/api/v1/users", "", http.StatusUnauthorized},
		{"users with bad token", "GET", "/api/v1/users", "garbage", http.StatusUnauthorized},
		{"users as admin", "GET", "/api/v1/users", tc.AdminToken, http.StatusOK},
		{"users as member", "GET", "/api/v1/users", tc.MemberToken, http.StatusForbidden},
		{"self as member", "GET", "/api/v1/users/" + tc.Member.ID.String(), tc.MemberToken, http.StatusOK},
		{"unknown route", "GET", "/api/v1/nothing", tc.AdminToken, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, tt.method, tt.path, nil, tt.token))
			testutil.AssertStatus(t, rr, tt.wantStatus)
		})
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	router, tc := newTestRouter(t)

	body := map[string]string{"email": tc.Member.PrimaryEmailAddress, "password": "wrongpassword"}
	var last int
	for i := 0; i < 11; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		last = rr.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
