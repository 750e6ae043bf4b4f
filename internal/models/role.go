package models

// Role names. Stored in roles.name and used as casbin subjects.
const (
	RoleCitizen            = "citizen"
	RoleAdmin              = "admin"
	RolePROfficer          = "pr_officer"
	RoleTechOfficer        = "tech_officer"
	RoleExternalMaintainer = "external_maintainer"
)

// Role is a user's authorization role.
type Role struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Label       string `gorm:"size:64"`
	IsMunicipal bool   `gorm:"not null;default:false"`
}

// IsStaff reports whether the role works reports (municipal staff and external maintainers).
func IsStaff(role string) bool {
	switch role {
	case RoleAdmin, RolePROfficer, RoleTechOfficer, RoleExternalMaintainer:
		return true
	}
	return false
}
