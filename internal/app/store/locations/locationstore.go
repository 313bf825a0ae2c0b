// internal/app/store/locations/locationstore.go

// Package locationstore manages the live position records members
// publish while in a group. The map component that renders them is
// outside this service; the records matter here because deleting a
// group must also delete its location documents.
package locationstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Location is one member's last reported position within a group.
type Location struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	GroupID   string    `bson:"group_id" json:"group_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Latitude  float64   `bson:"lat" json:"lat"`
	Longitude float64   `bson:"lng" json:"lng"`
	Status    string    `bson:"status,omitempty" json:"status,omitempty"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("locations")}
}

// Upsert writes a member's position record for a group, one document
// per (group, user).
func (s *Store) Upsert(ctx context.Context, loc Location) error {
	loc.UpdatedAt = time.Now().UTC()
	_, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": loc.GroupID, "user_id": loc.UserID},
		bson.M{"$set": bson.M{
			"lat":        loc.Latitude,
			"lng":        loc.Longitude,
			"status":     loc.Status,
			"updated_at": loc.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// DeleteByGroup removes all position records for a group. Returns the
// number of documents deleted.
func (s *Store) DeleteByGroup(ctx context.Context, groupID string) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteByUser removes a user's position records (used when leaving a
// group).
func (s *Store) DeleteByUser(ctx context.Context, groupID, userID string) error {
	_, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID, "user_id": userID})
	return err
}

// CountByGroup returns the number of position records in a group.
func (s *Store) CountByGroup(ctx context.Context, groupID string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID})
}
