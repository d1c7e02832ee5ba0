package models

import "github.com/google/uuid"

type User struct {
	Base
	FirstName string `gorm:"not null" json:"firstName"`
	LastName  string `gorm:"not null" json:"lastName"`

	// bcrypt hash; nil means the account has no usable password.
	Password *string `gorm:"column:password" json:"-"`

	// Unique among live users; the partial index backs the check made at signup.
	PrimaryEmailAddress string     `gorm:"not null;index:idx_users_live_primary_email,unique,where:deleted = false" json:"primaryEmailAddress"`
	PrimaryEmailID      *uuid.UUID `gorm:"type:uuid" json:"primaryEmailId"`

	Disabled bool `gorm:"not null;default:false" json:"disabled"`
	Deleted  bool `gorm:"not null;default:false;index" json:"deleted"`

	// Relationships
	Emails        []UserEmail    `gorm:"foreignKey:UserID" json:"-"`
	Organizations []Organization `gorm:"many2many:user_organizations" json:"-"`
	Roles         []Role         `gorm:"many2many:user_roles" json:"-"`
}

func (User) TableName() string {
	return "users"
}
