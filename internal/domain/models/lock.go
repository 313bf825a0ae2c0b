// internal/domain/models/lock.go
package models

import "time"

// Lock is a lease-based advisory lock stored as ordinary data in the
// locks collection, one document per resource. At most one valid
// (non-expired) lease may exist per resource at any instant. Expiry is
// evaluated lazily by the next acquirer; there is no active timer.
type Lock struct {
	ResourceID string    `bson:"_id" json:"resource_id"`
	OwnerID    string    `bson:"owner_id" json:"owner_id"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the lease has lapsed at the given instant,
// making it reclaimable by any owner.
func (l Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
