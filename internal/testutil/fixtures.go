// internal/testutil/fixtures.go
package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/musterapp/muster/internal/domain/models"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a test user with the given role.
func (f *Fixtures) CreateUser(ctx context.Context, name, email, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:          primitive.NewObjectID().Hex(),
		DisplayName: name,
		Email:       email,
		EmailCI:     text.Fold(email),
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateMember inserts a test user with the member role.
func (f *Fixtures) CreateMember(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleMember)
}

// CreateVolunteer inserts a test user with the volunteer role.
func (f *Fixtures) CreateVolunteer(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleVolunteer)
}

// CreateCustomGroup inserts a custom group led by leaderID. Extra
// member ids are appended after the leader.
func (f *Fixtures) CreateCustomGroup(ctx context.Context, name, joinCode, leaderID string, memberIDs ...string) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	group := models.Group{
		ID:        primitive.NewObjectID().Hex(),
		Name:      name,
		NameCI:    text.Fold(name),
		Kind:      models.KindCustom,
		JoinCode:  joinCode,
		LeaderID:  leaderID,
		MemberIDs: append([]string{leaderID}, memberIDs...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("groups").InsertOne(ctx, group); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	return group
}

// CreateSpecialGroup inserts the singleton group for a role class
// ("volunteers" or "organizers") with the given members.
func (f *Fixtures) CreateSpecialGroup(ctx context.Context, roleClass string, memberIDs ...string) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	if memberIDs == nil {
		memberIDs = []string{}
	}
	group := models.Group{
		ID:        models.SpecialGroupID(roleClass),
		Name:      roleClass,
		NameCI:    text.Fold(roleClass),
		Kind:      models.KindSpecial,
		MemberIDs: memberIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("groups").InsertOne(ctx, group); err != nil {
		f.t.Fatalf("failed to create test special group: %v", err)
	}
	return group
}
