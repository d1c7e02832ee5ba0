package models

type Role struct {
	Base
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description,omitempty"`

	Permissions []Permission `gorm:"many2many:role_permissions" json:"-"`
}

func (Role) TableName() string {
	return "roles"
}

// Permission is a named capability such as ViewUsers, granted through roles.
type Permission struct {
	Base
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

func (Permission) TableName() string {
	return "permissions"
}
