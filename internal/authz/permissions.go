package authz

// Capability names stored in the permissions table.
const (
	ViewUsers               = "ViewUsers"
	CreateUsers             = "CreateUsers"
	UpdateBasicUserInfo     = "UpdateBasicUserInfo"
	AddEmail                = "AddEmail"
	DeleteEmail             = "DeleteEmail"
	SetPrimaryEmail         = "SetPrimaryEmail"
	ManageUserOrganizations = "ManageUserOrganizations"
	ManageUserRoles         = "ManageUserRoles"
	DeleteUsers             = "DeleteUsers"
)

// All lists every capability, in the order the seed creates them.
var All = []string{
	ViewUsers,
	CreateUsers,
	UpdateBasicUserInfo,
	AddEmail,
	DeleteEmail,
	SetPrimaryEmail,
	ManageUserOrganizations,
	ManageUserRoles,
	DeleteUsers,
}
