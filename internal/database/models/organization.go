package models

type Organization struct {
	Base
	Name     string `gorm:"not null" json:"name"`
	Personal bool   `gorm:"not null;default:false" json:"personal"`
	Deleted  bool   `gorm:"not null;default:false;index" json:"deleted"`

	Users []User `gorm:"many2many:user_organizations" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}
