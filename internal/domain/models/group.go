// internal/domain/models/group.go
package models

import (
	"strings"
	"time"
)

// Group kinds.
const (
	KindCustom  = "custom"
	KindSpecial = "special"
)

// specialIDPrefix namespaces the deterministic document ids used for
// singleton role-class groups, so creation is naturally idempotent.
const specialIDPrefix = "special_"

// Group is a coordination group.
//
// Custom groups are user-created: they always carry a non-empty join
// code and a leader_id equal to their creator. Special groups are the
// lazily created singletons for privileged role classes: no join code,
// no leader, at most one instance per role class system-wide.
//
// MemberIDs has set semantics even though Mongo stores it as an array;
// all writers go through $addToSet/$pull so duplicates never occur.
type Group struct {
	ID        string   `bson:"_id" json:"id"`
	Name      string   `bson:"name" json:"name"`
	NameCI    string   `bson:"name_ci" json:"name_ci"`
	Kind      string   `bson:"kind" json:"kind"`
	JoinCode  string   `bson:"join_code,omitempty" json:"join_code,omitempty"`
	LeaderID  string   `bson:"leader_id,omitempty" json:"leader_id,omitempty"`
	MemberIDs []string `bson:"member_ids" json:"member_ids"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasMember reports whether userID is in the group's member set.
func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SpecialGroupID returns the deterministic document id for a role
// class's singleton group.
func SpecialGroupID(roleClass string) string {
	return specialIDPrefix + roleClass
}

// SpecialRoleClass extracts the role class from a special group id.
// ok=false means the id does not belong to a special group.
func SpecialRoleClass(groupID string) (string, bool) {
	class, found := strings.CutPrefix(groupID, specialIDPrefix)
	if !found || class == "" {
		return "", false
	}
	return class, true
}
