// internal/app/store/locks/lockstore.go

// Package lockstore implements the lease-based advisory lock used to
// serialize multi-document operations. The backing store offers no
// multi-document transactions across top-level collections, so
// destructive operations that touch several documents (group deletion
// and its membership scrub) first take a lease on a single lock
// document, whose create/compare/update IS atomic.
package lockstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/musterapp/muster/internal/app/system/metrics"
	"github.com/musterapp/muster/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultTTL bounds how long a crashed holder can block a resource.
// A multi-document deletion has been observed to take ~12s, so the
// lease must outlive that comfortably.
const DefaultTTL = 30 * time.Second

// ErrLockNotAcquired means a valid lease is held by another owner.
// Surfaced to the user as "operation busy, try again"; never retried in
// a loop, to keep destructive operations bounded in latency.
var ErrLockNotAcquired = errors.New("resource is locked by another operation")

type Store struct {
	c   *mongo.Collection
	now func() time.Time // test hook
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("locks"), now: time.Now}
}

// EnsureIndexes creates a TTL index that garbage-collects lock
// documents well after their lease lapsed. Expiry is enforced by the
// acquisition filter; the index only keeps the collection from
// accumulating dead leases.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetName("idx_locks_expire").SetExpireAfterSeconds(3600),
	})
	return err
}

// Acquire takes the lease for resourceID, or returns ErrLockNotAcquired
// if another owner holds a valid one. Acquisition is a single
// FindOneAndUpdate: the filter matches only when no valid foreign lease
// exists (document absent, already ours, or expired; a lapsed lease is
// reclaimable by anyone without the original owner's cooperation), and
// the upsert writes the new lease atomically. When the filter misses
// because a live foreign lease exists, the upsert collides with that
// document's id, which Mongo reports as a duplicate key.
func (s *Store) Acquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now().UTC()
	filter := bson.M{
		"_id": resourceID,
		"$or": []bson.M{
			{"owner_id": ownerID},
			{"expires_at": bson.M{"$lte": now}},
		},
	}
	update := bson.M{"$set": bson.M{
		"owner_id":   ownerID,
		"expires_at": now.Add(ttl),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var lease models.Lock
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&lease)
	if err != nil {
		if wafflemongo.IsDup(err) {
			metrics.LockAcquireTotal.WithLabelValues("busy").Inc()
			return ErrLockNotAcquired
		}
		metrics.LockAcquireTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.LockAcquireTotal.WithLabelValues("acquired").Inc()
	return nil
}

// Release deletes the lease if it is still ours. Releasing a lease that
// expired and was reclaimed by someone else is a no-op.
func (s *Store) Release(ctx context.Context, resourceID, ownerID string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": resourceID, "owner_id": ownerID})
	return err
}

// Get returns the current lease document for a resource.
func (s *Store) Get(ctx context.Context, resourceID string) (models.Lock, error) {
	var l models.Lock
	if err := s.c.FindOne(ctx, bson.M{"_id": resourceID}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Lock{}, mongo.ErrNoDocuments
		}
		return models.Lock{}, err
	}
	return l, nil
}

// WithLock runs body while holding the lease for resourceID. The lease
// is released whether body succeeds, fails, or panics; a failing body
// must never leak the lock. Release uses a detached context so a body
// that consumed the deadline still gets its lease cleaned up.
func (s *Store) WithLock(ctx context.Context, resourceID, ownerID string, ttl time.Duration, body func(context.Context) error) error {
	if err := s.Acquire(ctx, resourceID, ownerID, ttl); err != nil {
		return err
	}

	var released bool
	release := func() error {
		if released {
			return nil
		}
		released = true
		return s.Release(context.WithoutCancel(ctx), resourceID, ownerID)
	}
	defer func() { _ = release() }()

	if err := body(ctx); err != nil {
		if relErr := release(); relErr != nil {
			return fmt.Errorf("%w (lock release also failed: %v)", err, relErr)
		}
		return err
	}
	return release()
}
