package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Every connection to :memory: is a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { CleanupTestDB(t, db) })
	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestOrg creates a non-personal organization
func CreateTestOrg(t *testing.T, db *gorm.DB, name string) *models.Organization {
	t.Helper()

	org := &models.Organization{Name: name}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

// CreateTestRole creates a role holding the named permissions, creating any
// permission that does not exist yet.
func CreateTestRole(t *testing.T, db *gorm.DB, name string, permissions ...string) *models.Role {
	t.Helper()

	role := &models.Role{Name: name}
	if err := db.Omit("Permissions").Create(role).Error; err != nil {
		t.Fatalf("failed to create test role: %v", err)
	}
	for _, p := range permissions {
		perm := models.Permission{Name: p}
		if err := db.Where(models.Permission{Name: p}).FirstOrCreate(&perm).Error; err != nil {
			t.Fatalf("failed to create permission %s: %v", p, err)
		}
		if err := db.Model(role).Association("Permissions").Append(&perm); err != nil {
			t.Fatalf("failed to grant permission %s: %v", p, err)
		}
	}
	return role
}

// CreateTestUser creates a user with a primary email, a personal
// organization and the password "testpassword123".
func CreateTestUser(t *testing.T, db *gorm.DB, roles ...*models.Role) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	address := "test-" + uuid.New().String()[:8] + "@example.com"
	personal := &models.Organization{Name: address, Personal: true}
	if err := db.Create(personal).Error; err != nil {
		t.Fatalf("failed to create personal organization: %v", err)
	}

	user := &models.User{
		FirstName:           "Test",
		LastName:            "User",
		Password:            &hash,
		PrimaryEmailAddress: address,
	}
	if err := db.Omit("Organizations", "Roles", "Emails").Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	email := &models.UserEmail{UserID: user.ID, Email: address}
	if err := db.Omit("User").Create(email).Error; err != nil {
		t.Fatalf("failed to create test user email: %v", err)
	}
	if err := db.Model(user).Update("primary_email_id", email.ID).Error; err != nil {
		t.Fatalf("failed to set primary email: %v", err)
	}
	user.PrimaryEmailID = &email.ID

	if err := db.Model(user).Association("Organizations").Append(personal); err != nil {
		t.Fatalf("failed to link organization: %v", err)
	}
	user.Organizations = []models.Organization{*personal}

	for _, role := range roles {
		if err := db.Model(user).Association("Roles").Append(role); err != nil {
			t.Fatalf("failed to assign role: %v", err)
		}
	}

	return user
}

// CreateTestUserEmail adds a secondary address to user.
func CreateTestUserEmail(t *testing.T, db *gorm.DB, user *models.User, address string) *models.UserEmail {
	t.Helper()

	email := &models.UserEmail{UserID: user.ID, Email: address}
	if err := db.Omit("User").Create(email).Error; err != nil {
		t.Fatalf("failed to create test user email: %v", err)
	}
	return email
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.PrimaryEmailAddress)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	Factory    *database.Factory
	JWTService *auth.JWTService
	// Admin holds every permission passed to NewTestContext.
	Admin      *models.User
	AdminToken string
	// Member holds no roles.
	Member      *models.User
	MemberToken string
}

// NewTestContext creates a database with an admin user granted permissions
// and a member user with none.
func NewTestContext(t *testing.T, permissions ...string) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	adminRole := CreateTestRole(t, db, "Administrator", permissions...)
	admin := CreateTestUser(t, db, adminRole)
	member := CreateTestUser(t, db)

	return &TestSetup{
		DB:          db,
		Factory:     database.NewFactory(db),
		JWTService:  jwtService,
		Admin:       admin,
		AdminToken:  GenerateTestToken(t, jwtService, admin),
		Member:      member,
		MemberToken: GenerateTestToken(t, jwtService, member),
	}
}
