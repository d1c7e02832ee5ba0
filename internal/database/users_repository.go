package database

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/database/models"
	"gorm.io/gorm/clause"
)

type UsersRepository struct {
	uow *UnitOfWork
}

// GetUserByID returns a live user with its organizations loaded.
func (r *UsersRepository) GetUserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.uow.conn().
		Preload("Organizations").
		Where("id = ? AND deleted = ?", id, false).
		First(&user).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (r *UsersRepository) GetAllUsers() ([]models.User, error) {
	var users []models.User
	err := r.uow.conn().
		Preload("Organizations").
		Where("deleted = ?", false).
		Order("created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, translateError(err)
	}
	return users, nil
}

// GetUserByEmail looks a live user up by primary email address.
func (r *UsersRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.uow.conn().
		Where("primary_email_address = ? AND deleted = ?", email, false).
		First(&user).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// CreateUser inserts user and links it to orgs.
func (r *UsersRepository) CreateUser(user *models.User, orgs []models.Organization) error {
	db := r.uow.conn()
	if err := db.Omit(clause.Associations).Create(user).Error; err != nil {
		return fmt.Errorf("creating user: %w", translateError(err))
	}
	if len(orgs) > 0 {
		if err := db.Model(user).Association("Organizations").Append(orgs); err != nil {
			return fmt.Errorf("linking organizations: %w", translateError(err))
		}
	}
	user.Organizations = orgs
	return nil
}

// EditUser applies column updates to a live user and returns the result.
func (r *UsersRepository) EditUser(id uuid.UUID, fields map[string]interface{}) (*models.User, error) {
	res := r.uow.conn().
		Model(&models.User{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("updating user: %w", translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetUserByID(id)
}

func (r *UsersRepository) SetPrimaryUserEmail(userID uuid.UUID, email *models.UserEmail) error {
	_, err := r.EditUser(userID, map[string]interface{}{
		"primary_email_id":      email.ID,
		"primary_email_address": email.Email,
	})
	return err
}

func (r *UsersRepository) ReplaceUserOrganizations(userID uuid.UUID, orgs []models.Organization) error {
	assoc := r.uow.conn().Model(&models.User{Base: models.Base{ID: userID}}).Association("Organizations")
	var err error
	if len(orgs) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(orgs)
	}
	if err != nil {
		return fmt.Errorf("replacing organizations: %w", translateError(err))
	}
	return nil
}

func (r *UsersRepository) ReplaceUserRoles(userID uuid.UUID, roles []models.Role) error {
	assoc := r.uow.conn().Model(&models.User{Base: models.Base{ID: userID}}).Association("Roles")
	var err error
	if len(roles) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(roles)
	}
	if err != nil {
		return fmt.Errorf("replacing roles: %w", translateError(err))
	}
	return nil
}

func (r *UsersRepository) GetUserRoles(userID uuid.UUID) ([]models.Role, error) {
	var roles []models.Role
	err := r.uow.conn().Model(&models.User{Base: models.Base{ID: userID}}).
		Association("Roles").
		Find(&roles)
	if err != nil {
		return nil, translateError(err)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (r *UsersRepository) GetUserOrganizations(userID uuid.UUID) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.uow.conn().Model(&models.User{Base: models.Base{ID: userID}}).
		Association("Organizations").
		Find(&orgs)
	if err != nil {
		return nil, translateError(err)
	}
	return orgs, nil
}

// DeleteUser soft-deletes a live user. It reports false when there was
// nothing to delete.
func (r *UsersRepository) DeleteUser(id uuid.UUID) (bool, error) {
	res := r.uow.conn().
		Model(&models.User{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]interface{}{"deleted": true, "disabled": true})
	if res.Error != nil {
		return false, fmt.Errorf("deleting user: %w", translateError(res.Error))
	}
	return res.RowsAffected > 0, nil
}
