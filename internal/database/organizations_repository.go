package database

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/database/models"
)

type OrganizationsRepository struct {
	uow *UnitOfWork
}

func (r *OrganizationsRepository) CreateOrganization(name string, personal bool) (*models.Organization, error) {
	org := &models.Organization{
		Name:     name,
		Personal: personal,
	}
	if err := r.uow.conn().Create(org).Error; err != nil {
		return nil, fmt.Errorf("creating organization: %w", translateError(err))
	}
	return org, nil
}

func (r *OrganizationsRepository) GetOrganizationByID(id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.uow.conn().Where("id = ? AND deleted = ?", id, false).First(&org).Error; err != nil {
		return nil, translateError(err)
	}
	return &org, nil
}

// GetOrganizationsByIDs resolves every id to a live organization, failing
// with ErrNotFound if any is missing.
func (r *OrganizationsRepository) GetOrganizationsByIDs(ids []uuid.UUID) ([]models.Organization, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var orgs []models.Organization
	if err := r.uow.conn().Where("id IN ? AND deleted = ?", ids, false).Find(&orgs).Error; err != nil {
		return nil, translateError(err)
	}
	if len(orgs) != len(ids) {
		return nil, fmt.Errorf("organizations: %w", ErrNotFound)
	}
	return orgs, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
