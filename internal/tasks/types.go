package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeSendVerification  = "email:verification"
	TypeVerificationSweep = "email:verification_sweep"
)

// SendVerificationPayload names the email record to verify
type SendVerificationPayload struct {
	UserEmailID uuid.UUID `json:"userEmailId"`
	UserID      uuid.UUID `json:"userId"`
}

func NewSendVerificationTask(payload SendVerificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendVerification, data), nil
}

// NewVerificationSweepTask carries no payload; the sweep covers every email.
func NewVerificationSweepTask() *asynq.Task {
	return asynq.NewTask(TypeVerificationSweep, nil)
}
