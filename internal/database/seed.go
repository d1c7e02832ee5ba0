package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/database/models"
	"gorm.io/gorm"
)

// TestOrganizationID is the fixed id of the seeded personal organization.
var TestOrganizationID = uuid.MustParse("966f4157-934c-45e7-9f44-b1e5fd8b79a7")

const AdministratorRole = "Administrator"

type SeedAdmin struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

type SeedOptions struct {
	// Permission names to create and grant to the Administrator role.
	Permissions []string
	// Optional administrator account bound to the Administrator role.
	Admin *SeedAdmin
}

type SeedResult struct {
	Organization *models.Organization
	Role         *models.Role
	Admin        *models.User
}

// Seed resets roles, permissions and organizations and inserts the baseline
// records, all in one transaction. Users are left in place but lose their
// organization and role links.
func Seed(ctx context.Context, db *gorm.DB, opts SeedOptions) (*SeedResult, error) {
	var result SeedResult

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Dependents first.
		for _, table := range []string{"user_organizations", "user_roles", "role_permissions", "roles", "permissions"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		if err := tx.Exec("DELETE FROM organizations").Error; err != nil {
			return fmt.Errorf("clearing organizations: %w", err)
		}

		org := &models.Organization{
			Base:     models.Base{ID: TestOrganizationID},
			Name:     "Test Organization",
			Personal: true,
		}
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}
		result.Organization = org

		perms := make([]models.Permission, 0, len(opts.Permissions))
		for _, name := range opts.Permissions {
			perms = append(perms, models.Permission{Name: name})
		}
		if len(perms) > 0 {
			if err := tx.Create(&perms).Error; err != nil {
				return fmt.Errorf("creating permissions: %w", err)
			}
		}

		role := &models.Role{
			Name:        AdministratorRole,
			Description: "Full access to user management",
		}
		if err := tx.Omit("Permissions").Create(role).Error; err != nil {
			return fmt.Errorf("creating role: %w", err)
		}
		if len(perms) > 0 {
			if err := tx.Model(role).Association("Permissions").Append(perms); err != nil {
				return fmt.Errorf("granting permissions: %w", err)
			}
		}
		result.Role = role

		if opts.Admin == nil {
			return nil
		}
		admin, err := seedAdmin(tx, opts.Admin, org, role)
		if err != nil {
			return err
		}
		result.Admin = admin
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// seedAdmin reuses a live user holding the admin address or creates one,
// then links it to the seeded organization and role.
func seedAdmin(tx *gorm.DB, in *SeedAdmin, org *models.Organization, role *models.Role) (*models.User, error) {
	var admin models.User
	err := tx.Where("primary_email_address = ? AND deleted = ?", in.Email, false).First(&admin).Error
	switch {
	case err == nil:
	case err == gorm.ErrRecordNotFound:
		hash := in.PasswordHash
		admin = models.User{
			FirstName:           in.FirstName,
			LastName:            in.LastName,
			Password:            &hash,
			PrimaryEmailAddress: in.Email,
		}
		if err := tx.Omit("Organizations", "Roles", "Emails").Create(&admin).Error; err != nil {
			return nil, fmt.Errorf("creating admin: %w", err)
		}
		email := models.UserEmail{UserID: admin.ID, Email: in.Email, Verified: true}
		if err := tx.Omit("User").Create(&email).Error; err != nil {
			return nil, fmt.Errorf("creating admin email: %w", err)
		}
		if err := tx.Model(&admin).Update("primary_email_id", email.ID).Error; err != nil {
			return nil, fmt.Errorf("linking admin email: %w", err)
		}
		admin.PrimaryEmailID = &email.ID
	default:
		return nil, fmt.Errorf("looking up admin: %w", err)
	}

	if err := tx.Model(&admin).Association("Organizations").Append(org); err != nil {
		return nil, fmt.Errorf("linking admin organization: %w", err)
	}
	if err := tx.Model(&admin).Association("Roles").Append(role); err != nil {
		return nil, fmt.Errorf("linking admin role: %w", err)
	}
	return &admin, nil
}
