package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/api/dto"
	"github.com/hugh/go-accounts/internal/api/validation"
	"github.com/hugh/go-accounts/internal/authz"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/users"
)

type UserHandler struct {
	users  *users.Service
	logger *slog.Logger
}

func NewUserHandler(svc *users.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: svc, logger: logger}
}

// Routes returns the /users subtree. require builds the permission check
// for each route.
func (h *UserHandler) Routes(require func(authz.Requirement) func(http.Handler) http.Handler) chi.Router {
	self := authz.SelfOr("userId", authz.ViewUsers)
	perms := func(p ...string) func(http.Handler) http.Handler {
		return require(authz.Static(append([]string{authz.ViewUsers}, p...)))
	}

	r := chi.NewRouter()
	r.With(perms()).Get("/", h.List)
	r.With(perms(authz.CreateUsers)).Post("/", h.Create)

	r.Route("/{userId}", func(r chi.Router) {
		r.With(require(self)).Get("/", h.Get)
		r.With(perms(authz.DeleteUsers)).Delete("/", h.Delete)
		r.With(perms(authz.UpdateBasicUserInfo)).Put("/general", h.UpdateGeneral)
		r.With(perms(authz.AddEmail)).Post("/addUserEmails", h.AddEmails)
		r.With(perms(authz.DeleteEmail)).Post("/deleteUserEmails", h.DeleteEmails)
		r.With(perms(authz.SetPrimaryEmail)).Put("/setPrimaryUserEmail", h.SetPrimaryEmail)
		r.With(perms(authz.ManageUserOrganizations)).Put("/organizations", h.ReplaceOrganizations)
		r.With(perms(authz.ManageUserRoles)).Put("/roles", h.ReplaceRoles)
		r.With(require(self)).Get("/roles", h.ListRoles)
	})

	return r
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserResponse(user))
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserResponses(list))
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if !decode(w, r, &req) {
		return
	}

	first, last, ok := sanitizeNames(w, req.FirstName, req.LastName)
	if !ok {
		return
	}

	user, err := h.users.Create(r.Context(), users.CreateInput{
		FirstName:           first,
		LastName:            last,
		Password:            req.Password,
		ConfirmPassword:     req.ConfirmPassword,
		PrimaryEmailAddress: req.PrimaryEmailAddress,
		OrganizationIDs:     parseIDs(req.OrganizationIDs),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	// Reload so memberships are part of the response.
	if full, err := h.users.Get(r.Context(), user.ID); err == nil {
		user = full
	}
	writeJSON(w, http.StatusCreated, dto.NewUserResponse(user))
}

func (h *UserHandler) UpdateGeneral(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req dto.UpdateGeneralRequest
	if !decode(w, r, &req) {
		return
	}

	first, last, ok := sanitizeNames(w, req.FirstName, req.LastName)
	if !ok {
		return
	}

	user, err := h.users.UpdateGeneral(r.Context(), id, users.GeneralInput{
		FirstName: first,
		LastName:  last,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUserResponse(user))
}

func (h *UserHandler) AddEmails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req dto.AddUserEmailsRequest
	if !decode(w, r, &req) {
		return
	}

	inputs := make([]database.UserEmailInput, 0, len(req.UserEmails))
	for _, in := range req.UserEmails {
		input := database.UserEmailInput{Email: in.Email}
		if in.ID != nil {
			emailID := uuid.MustParse(*in.ID)
			input.ID = &emailID
		}
		inputs = append(inputs, input)
	}

	if err := h.users.AddEmails(r.Context(), id, inputs); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (h *UserHandler) DeleteEmails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req dto.DeleteUserEmailsRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.users.DeleteEmails(r.Context(), id, parseIDs(req.UserEmailIDs)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (h *UserHandler) SetPrimaryEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req dto.SetPrimaryUserEmailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.users.SetPrimaryEmail(r.Context(), id, uuid.MustParse(req.PrimaryUserEmailID)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (h *UserHandler) ReplaceOrganizations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req dto.ReplaceOrganizationsRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.users.ReplaceOrganizations(r.Context(), id, parseIDs(req.OrganizationIDs)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) ReplaceRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req dto.ReplaceRolesRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.users.ReplaceRoles(r.Context(), id, parseIDs(req.RoleIDs)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	roles, err := h.users.ListRoles(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewRoleResponses(roles))
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// VerifyEmail confirms an address with the token from its verification
// email. It needs no bearer token.
func (h *UserHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userEmailId")
	if !ok {
		return
	}
	var req dto.VerifyUserEmailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.users.VerifyEmail(r.Context(), id, req.Token); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// sanitizeNames strips markup from both names and rejects any left empty.
func sanitizeNames(w http.ResponseWriter, firstName, lastName string) (string, string, bool) {
	first := validation.SanitizeName(firstName)
	last := validation.SanitizeName(lastName)

	details := map[string]string{}
	if first == "" {
		details["firstName"] = "is required"
	}
	if last == "" {
		details["lastName"] = "is required"
	}
	if len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: details})
		return "", "", false
	}
	return first, last, true
}
