package database

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/database/models"
)

type RolesRepository struct {
	uow *UnitOfWork
}

// GetRolesByIDs resolves every id to a role, failing with ErrNotFound if any
// is missing.
func (r *RolesRepository) GetRolesByIDs(ids []uuid.UUID) ([]models.Role, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var roles []models.Role
	if err := r.uow.conn().Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, translateError(err)
	}
	if len(roles) != len(ids) {
		return nil, fmt.Errorf("roles: %w", ErrNotFound)
	}
	return roles, nil
}

// GetPermissionNames returns the distinct permission names granted to a
// live, enabled user through its roles.
func (r *RolesRepository) GetPermissionNames(userID uuid.UUID) ([]string, error) {
	var names []string
	err := r.uow.conn().Raw(`
	SELECT DISTINCT p.name
	FROM permissions p
	JOIN role_permissions rp ON rp.permission_id = p.id
	JOIN user_roles ur ON ur.role_id = rp.role_id
	JOIN users u ON u.id = ur.user_id
	WHERE ur.user_id = ? AND u.deleted = ? AND u.disabled = ?
	ORDER BY p.name`, userID, false, false).
		Scan(&names).Error
	if err != nil {
		return nil, translateError(err)
	}
	return names, nil
}
