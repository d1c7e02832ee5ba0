package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/database/models"
)

type UserEmailsRepository struct {
	uow *UnitOfWork
}

// UserEmailInput describes one address in an add request. A non-nil ID
// refers to an existing record of the same user that should be reused.
type UserEmailInput struct {
	Email string
	ID    *uuid.UUID
}

func (r *UserEmailsRepository) CreateUserEmail(userID uuid.UUID, email string) (*models.UserEmail, error) {
	ue := &models.UserEmail{
		UserID: userID,
		Email:  email,
	}
	if err := r.uow.conn().Create(ue).Error; err != nil {
		return nil, fmt.Errorf("creating user email: %w", translateError(err))
	}
	return ue, nil
}

// GetUserEmailByID returns a live email record.
func (r *UserEmailsRepository) GetUserEmailByID(id uuid.UUID) (*models.UserEmail, error) {
	var ue models.UserEmail
	if err := r.uow.conn().Where("id = ? AND deleted = ?", id, false).First(&ue).Error; err != nil {
		return nil, translateError(err)
	}
	return &ue, nil
}

func (r *UserEmailsRepository) GetUserEmails(userID uuid.UUID) ([]models.UserEmail, error) {
	var emails []models.UserEmail
	err := r.uow.conn().
		Where("user_id = ? AND deleted = ?", userID, false).
		Order("created_at ASC").
		Find(&emails).Error
	if err != nil {
		return nil, translateError(err)
	}
	return emails, nil
}

// AddUserEmails creates or reuses email records for userID and returns the
// ones that now need verification. An input with an ID must name one of the
// user's records (deleted or not) or ErrNotFound is returned. An input
// without an ID whose address the user already has live is skipped; one
// matching a deleted record restores it.
func (r *UserEmailsRepository) AddUserEmails(userID uuid.UUID, inputs []UserEmailInput) ([]models.UserEmail, error) {
	db := r.uow.conn()

	var loaded []models.UserEmail
	if err := db.Where("user_id = ?", userID).Find(&loaded).Error; err != nil {
		return nil, translateError(err)
	}
	existing := make([]*models.UserEmail, 0, len(loaded)+len(inputs))
	byID := make(map[uuid.UUID]*models.UserEmail, len(loaded))
	for i := range loaded {
		existing = append(existing, &loaded[i])
		byID[loaded[i].ID] = &loaded[i]
	}
	findByAddress := func(addr string) *models.UserEmail {
		var deleted *models.UserEmail
		for _, ue := range existing {
			if !strings.EqualFold(ue.Email, addr) {
				continue
			}
			if !ue.Deleted {
				return ue
			}
			if deleted == nil {
				deleted = ue
			}
		}
		return deleted
	}

	var touched []models.UserEmail
	seen := make(map[uuid.UUID]bool)

	for _, in := range inputs {
		var target *models.UserEmail
		if in.ID != nil {
			target = byID[*in.ID]
			if target == nil {
				return nil, fmt.Errorf("user email %s: %w", *in.ID, ErrNotFound)
			}
		} else {
			target = findByAddress(in.Email)
		}

		if target == nil {
			ue, err := r.CreateUserEmail(userID, in.Email)
			if err != nil {
				return nil, err
			}
			existing = append(existing, ue)
			touched = append(touched, *ue)
			seen[ue.ID] = true
			continue
		}

		updates := map[string]interface{}{}
		if target.Deleted {
			updates["deleted"] = false
		}
		if target.Email != in.Email && in.Email != "" {
			updates["email"] = in.Email
			updates["verified"] = false
			updates["verified_at"] = nil
		}
		if len(updates) == 0 || seen[target.ID] {
			continue
		}
		if err := db.Model(target).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("reusing user email: %w", translateError(err))
		}
		target.Deleted = false
		if e, ok := updates["email"].(string); ok {
			target.Email = e
			target.Verified = false
			target.VerifiedAt = nil
		}
		touched = append(touched, *target)
		seen[target.ID] = true
	}

	return touched, nil
}

// DeleteUserEmails soft-deletes the given records of userID.
func (r *UserEmailsRepository) DeleteUserEmails(ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.uow.conn().
		Model(&models.UserEmail{}).
		Where("id IN ? AND user_id = ? AND deleted = ?", ids, userID, false).
		Updates(map[string]interface{}{
			"deleted":                 true,
			"verification_token_hash": nil,
			"verification_expires_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting user emails: %w", translateError(res.Error))
	}
	return res.RowsAffected, nil
}

func (r *UserEmailsRepository) SetVerificationToken(id uuid.UUID, hash string, expiresAt time.Time) error {
	err := r.uow.conn().
		Model(&models.UserEmail{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"verification_token_hash": hash,
			"verification_expires_at": expiresAt,
		}).Error
	return translateError(err)
}

func (r *UserEmailsRepository) MarkVerified(id uuid.UUID, at time.Time) error {
	err := r.uow.conn().
		Model(&models.UserEmail{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"verified":                true,
			"verified_at":             at,
			"verification_token_hash": nil,
			"verification_expires_at": nil,
		}).Error
	return translateError(err)
}

// ClearExpiredTokens drops verification tokens that expired before now.
func (r *UserEmailsRepository) ClearExpiredTokens(now time.Time) (int64, error) {
	res := r.uow.conn().
		Model(&models.UserEmail{}).
		Where("verification_expires_at IS NOT NULL AND verification_expires_at < ?", now).
		Updates(map[string]interface{}{
			"verification_token_hash": nil,
			"verification_expires_at": nil,
		})
	if res.Error != nil {
		return 0, translateError(res.Error)
	}
	return res.RowsAffected, nil
}
