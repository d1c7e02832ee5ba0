package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/mail"
)

// VerificationSettings shape the verification email.
type VerificationSettings struct {
	SiteName string
	BaseURL  string
	Expiry   time.Duration
}

type Handler struct {
	uows     *database.Factory
	sender   mail.Sender
	settings VerificationSettings
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(uows *database.Factory, sender mail.Sender, settings VerificationSettings, logger *slog.Logger) *Handler {
	return &Handler{
		uows:     uows,
		sender:   sender,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSendVerification, h.HandleSendVerification)
	mux.HandleFunc(TypeVerificationSweep, h.HandleVerificationSweep)
}

// HandleSendVerification issues a fresh token for the email and mails the
// link. Deleted, verified or reassigned records are skipped.
func (h *Handler) HandleSendVerification(ctx context.Context, t *asynq.Task) error {
	var payload SendVerificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	uow := h.uows.New(ctx)
	defer uow.Close()

	email, err := uow.UserEmails.GetUserEmailByID(payload.UserEmailID)
	if errors.Is(err, database.ErrNotFound) {
		h.logger.Info("skipping verification for missing email", "user_email_id", payload.UserEmailID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading user email: %w", err)
	}
	if email.Verified || email.UserID != payload.UserID {
		h.logger.Info("skipping verification", "user_email_id", email.ID, "verified", email.Verified)
		return nil
	}

	token, err := auth.NewVerificationToken()
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	hash, err := auth.HashPassword(token)
	if err != nil {
		return fmt.Errorf("hashing token: %w", err)
	}
	if err := uow.UserEmails.SetVerificationToken(email.ID, hash, h.now().Add(h.settings.Expiry)); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	msg := mail.BuildVerificationEmail(mail.VerificationEmailData{
		SiteName:  h.settings.SiteName,
		Address:   email.Email,
		Link:      h.verificationLink(email.ID.String(), token),
		ExpiresIn: humanDuration(h.settings.Expiry),
	})
	if err := h.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending verification: %w", err)
	}

	h.logger.Info("sent verification email", "user_email_id", email.ID, "user_id", email.UserID)
	return nil
}

// HandleVerificationSweep clears verification tokens that have expired.
func (h *Handler) HandleVerificationSweep(ctx context.Context, t *asynq.Task) error {
	uow := h.uows.New(ctx)
	defer uow.Close()

	cleared, err := uow.UserEmails.ClearExpiredTokens(h.now())
	if err != nil {
		return fmt.Errorf("clearing expired tokens: %w", err)
	}
	if cleared > 0 {
		h.logger.Info("cleared expired verification tokens", "count", cleared)
	}
	return nil
}

func (h *Handler) verificationLink(id, token string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("token", token)
	return h.settings.BaseURL + "/verify-email?" + q.Encode()
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
