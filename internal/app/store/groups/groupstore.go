// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/musterapp/muster/internal/app/system/joincode"
	"github.com/musterapp/muster/internal/app/system/normalize"
	"github.com/musterapp/muster/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"

	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound      = errors.New("group not found")
	ErrEmptyName     = errors.New("group name must not be empty")
	ErrDuplicateCode = errors.New("join code collision, retry group creation")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// EnsureIndexes creates the unique sparse join-code index. Sparse so
// special groups, which carry no code, stay out of the index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "join_code", Value: 1}},
		Options: options.Index().SetName("idx_groups_join_code").SetUnique(true).SetSparse(true),
	})
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

func (s *Store) GetByJoinCode(ctx context.Context, code string) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"join_code": normalize.JoinCode(code)}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

// CreateCustom creates a user-created group. The creator becomes the
// leader and the first member, and a fresh join code is assigned.
func (s *Store) CreateCustom(ctx context.Context, name, leaderID string) (models.Group, error) {
	name = normalize.Name(name)
	if name == "" {
		return models.Group{}, ErrEmptyName
	}
	now := time.Now().UTC()
	g := models.Group{
		ID:        primitive.NewObjectID().Hex(),
		Name:      name,
		NameCI:    text.Fold(name),
		Kind:      models.KindCustom,
		JoinCode:  joincode.New(),
		LeaderID:  leaderID,
		MemberIDs: []string{leaderID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateCode
		}
		return models.Group{}, err
	}
	return g, nil
}

// EnsureSpecial idempotently provisions the singleton group for a role
// class. The document id is derived from the role class, so concurrent
// first use converges on one document: the $setOnInsert upsert either
// inserts it or leaves the existing one untouched.
func (s *Store) EnsureSpecial(ctx context.Context, roleClass string) (models.Group, error) {
	id := models.SpecialGroupID(roleClass)
	now := time.Now().UTC()
	doc := bson.M{
		"name":       roleClass,
		"name_ci":    text.Fold(roleClass),
		"kind":       models.KindSpecial,
		"member_ids": []string{},
		"created_at": now,
		"updated_at": now,
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	// A losing concurrent upsert can surface as a duplicate-key error;
	// the winner's document is what we want either way.
	if err != nil && !wafflemongo.IsDup(err) {
		return models.Group{}, err
	}
	return s.GetByID(ctx, id)
}

// AddMember adds userID to the group's member set. Idempotent: a
// concurrent duplicate add cannot produce a second entry because the
// write is a set union, not an array append. A missing special group is
// self-healed through EnsureSpecial and retried once; a missing custom
// group means it was deleted concurrently and is ErrNotFound.
func (s *Store) AddMember(ctx context.Context, groupID, userID string) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{
			"$addToSet": bson.M{"member_ids": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	roleClass, ok := models.SpecialRoleClass(groupID)
	if !ok {
		return ErrNotFound
	}
	if _, err := s.EnsureSpecial(ctx, roleClass); err != nil {
		return err
	}
	res, err = s.c.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{
			"$addToSet": bson.M{"member_ids": userID},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveMember removes userID from the group's member set. Removing
// from a missing group is a no-op: the membership is gone either way.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": groupID},
		bson.M{
			"$pull": bson.M{"member_ids": userID},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	return err
}

// Delete removes a group by ID. Returns the number of documents
// deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
