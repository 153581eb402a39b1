package accounts

import "github.com/kozaktomas/school-attendance/internal/database"

// CanManageSchool reports whether u may administer schoolID.
// Government admins manage every school; school admins only their own.
func CanManageSchool(u *database.User, schoolID string) bool {
	switch {
	case u == nil:
		return false
	case u.Role == database.RoleGovAdmin:
		return true
	case u.Role.IsSchoolAdmin():
		return u.SchoolID != "" && u.SchoolID == schoolID
	}
	return false
}

// CanAccessSection reports whether u may read or mark attendance in sec.
// Teachers are limited to their assigned section.
func CanAccessSection(u *database.User, sec *database.Section) bool {
	if u == nil || sec == nil {
		return false
	}
	if u.Role == database.RoleTeacher {
		return u.SectionID != "" && u.SectionID == sec.ID
	}
	return CanManageSchool(u, sec.SchoolID)
}
