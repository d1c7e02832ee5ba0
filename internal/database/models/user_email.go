package models

import (
	"time"

	"github.com/google/uuid"
)

type UserEmail struct {
	Base
	UserID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"userId"`
	Email      string     `gorm:"not null;index" json:"email"`
	Verified   bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
	Deleted    bool       `gorm:"not null;default:false;index" json:"deleted"`

	// Pending verification token, stored as a bcrypt hash.
	VerificationTokenHash *string    `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (UserEmail) TableName() string {
	return "user_emails"
}
