package dto

import (
	"time"

	"github.com/hugh/go-accounts/internal/database/models"
)

type CreateUserRequest struct {
	FirstName           string   `json:"firstName" validate:"required,max=100"`
	LastName            string   `json:"lastName" validate:"required,max=100"`
	Password            *string  `json:"password" validate:"omitempty,min=8,max=128"`
	ConfirmPassword     *string  `json:"confirmPassword" validate:"omitempty,max=128"`
	PrimaryEmailAddress string   `json:"primaryEmailAddress" validate:"required,address"`
	OrganizationIDs     []string `json:"organizationIds" validate:"omitempty,dive,uuid"`
}

type UpdateGeneralRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
}

type UserEmailInput struct {
	Email string  `json:"email" validate:"required,address"`
	ID    *string `json:"id" validate:"omitempty,uuid"`
}

type AddUserEmailsRequest struct {
	UserEmails []UserEmailInput `json:"userEmails" validate:"required,dive"`
}

type DeleteUserEmailsRequest struct {
	UserEmailIDs []string `json:"userEmailIds" validate:"required,dive,uuid"`
}

type SetPrimaryUserEmailRequest struct {
	PrimaryUserEmailID string `json:"primaryUserEmailId" validate:"required,uuid"`
}

type ReplaceOrganizationsRequest struct {
	OrganizationIDs []string `json:"organizationIds" validate:"omitempty,dive,uuid"`
}

type ReplaceRolesRequest struct {
	RoleIDs []string `json:"roleIds" validate:"omitempty,dive,uuid"`
}

type VerifyUserEmailRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type OrganizationResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Personal bool   `json:"personal"`
}

// UserResponse is the outbound user. Password is always null.
type UserResponse struct {
	ID                  string                 `json:"id"`
	FirstName           string                 `json:"firstName"`
	LastName            string                 `json:"lastName"`
	Password            *string                `json:"password"`
	PrimaryEmailAddress string                 `json:"primaryEmailAddress"`
	PrimaryEmailID      *string                `json:"primaryEmailId"`
	Disabled            bool                   `json:"disabled"`
	Deleted             bool                   `json:"deleted"`
	Organizations       []OrganizationResponse `json:"organizations"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
}

type RoleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func NewUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:                  u.ID.String(),
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		PrimaryEmailAddress: u.PrimaryEmailAddress,
		Disabled:            u.Disabled,
		Deleted:             u.Deleted,
		Organizations:       make([]OrganizationResponse, 0, len(u.Organizations)),
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
	if u.PrimaryEmailID != nil {
		id := u.PrimaryEmailID.String()
		resp.PrimaryEmailID = &id
	}
	for _, o := range u.Organizations {
		resp.Organizations = append(resp.Organizations, OrganizationResponse{
			ID:       o.ID.String(),
			Name:     o.Name,
			Personal: o.Personal,
		})
	}
	return resp
}

func NewUserResponses(users []models.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}

func NewRoleResponses(roles []models.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleResponse{
			ID:          r.ID.String(),
			Name:        r.Name,
			Description: r.Description,
		})
	}
	return out
}
