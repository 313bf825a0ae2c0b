// internal/domain/models/user.go
package models

import "time"

// Account roles. A role is chosen once at onboarding and treated as
// immutable for the lifetime of the account.
const (
	RoleUnassigned = "unassigned"
	RoleMember     = "member"
	RoleVolunteer  = "volunteer"
	RoleOrganizer  = "organizer"
)

// User represents an authenticated account.
//
// NOTE:
//   - GroupID mirrors the group the user currently belongs to. It is a
//     reference kept so group deletion can scrub it; the group's
//     member_ids array is the authoritative membership list.
type User struct {
	ID           string `bson:"_id" json:"id"`
	DisplayName  string `bson:"display_name" json:"display_name"`
	Email        string `bson:"email" json:"email"`
	EmailCI      string `bson:"email_ci" json:"email_ci"` // lowercase, trimmed
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`
	Role         string `bson:"role" json:"role"`
	GroupID      string `bson:"group_id,omitempty" json:"group_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ValidRole reports whether role is one of the assignable account roles.
// "unassigned" is the pre-onboarding default and is not assignable.
func ValidRole(role string) bool {
	return role == RoleMember || role == RoleVolunteer || role == RoleOrganizer
}

// RoleClass returns the singleton-group class for privileged roles
// ("volunteers" for volunteer, "organizers" for organizer) and ok=false
// for every other role.
func RoleClass(role string) (string, bool) {
	switch role {
	case RoleVolunteer:
		return "volunteers", true
	case RoleOrganizer:
		return "organizers", true
	default:
		return "", false
	}
}
