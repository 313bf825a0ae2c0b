// internal/app/features/groups/handler_test.go
package groups_test

import (
	"encoding/json"
	"net/http"
	"testing"

	feature "github.com/musterapp/muster/internal/app/features/groups"
	"github.com/musterapp/muster/internal/app/groupops"
	"github.com/musterapp/muster/internal/app/membership"
	groupstore "github.com/musterapp/muster/internal/app/store/groups"
	locationstore "github.com/musterapp/muster/internal/app/store/locations"
	lockstore "github.com/musterapp/muster/internal/app/store/locks"
	"github.com/musterapp/muster/internal/app/store/prefs"
	userstore "github.com/musterapp/muster/internal/app/store/users"
	"github.com/musterapp/muster/internal/domain/models"
	"github.com/musterapp/muster/internal/testutil"

	"go.uber.org/zap"
)

type env struct {
	h     *feature.Handler
	f     *testutil.Fixtures
	users *userstore.Store
	prefs *prefs.MemoryStore
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	log := zap.NewNop()

	users := userstore.New(db)
	groups := groupstore.New(db)
	locations := locationstore.New(db)
	locks := lockstore.New(db)
	pstore := prefs.NewMemory()

	ops := groupops.New(groups, users, locations, pstore, locks, membership.NewHub(), log)
	return &env{
		h:     feature.NewHandler(ops, groups, locations, log),
		f:     testutil.NewFixtures(t, db),
		users: users,
		prefs: pstore,
	}
}

func member(u models.User) testutil.TestUser {
	return testutil.TestUser{ID: u.ID, Name: u.DisplayName, Role: u.Role}
}

func TestCreateAndJoinFlow(t *testing.T) {
	e := setup(t)
	ctx := testutil.TestContext(t)
	leader := e.f.CreateMember(ctx, "Lee", "lee@example.com")
	joiner := e.f.CreateMember(ctx, "Jo", "jo@example.com")

	rec := testutil.NewRecorder()
	e.h.HandleCreate(rec, testutil.NewAuthenticatedRequest("POST", "/groups",
		`{"name":"Saturday Hike"}`, member(leader)))
	rec.AssertStatus(t, http.StatusCreated)

	var g models.Group
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if g.LeaderID != leader.ID || g.JoinCode == "" {
		t.Fatalf("unexpected group: %+v", g)
	}

	rec = testutil.NewRecorder()
	e.h.HandleJoin(rec, testutil.NewAuthenticatedRequest("POST", "/groups/join",
		`{"code":"`+g.JoinCode+`"}`, member(joiner)))
	rec.AssertStatus(t, http.StatusOK)

	rec = testutil.NewRecorder()
	req := testutil.NewAuthenticatedRequest("GET", "/groups/"+g.ID, "", member(joiner))
	e.h.HandleGet(rec, testutil.WithChiURLParam(req, "groupID", g.ID))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, joiner.ID)
}

func TestJoinUnknownCode(t *testing.T) {
	e := setup(t)
	ctx := testutil.TestContext(t)
	u := e.f.CreateMember(ctx, "Jo", "jo@example.com")

	rec := testutil.NewRecorder()
	e.h.HandleJoin(rec, testutil.NewAuthenticatedRequest("POST", "/groups/join",
		`{"code":"ZZZZZZ"}`, member(u)))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestGetRequiresMembership(t *testing.T) {
	e := setup(t)
	ctx := testutil.TestContext(t)
	leader := e.f.CreateMember(ctx, "Lee", "lee@example.com")
	outsider := e.f.CreateMember(ctx, "Out", "out@example.com")
	g := e.f.CreateCustomGroup(ctx, "Hike", "HIKE01", leader.ID)

	rec := testutil.NewRecorder()
	req := testutil.NewAuthenticatedRequest("GET", "/groups/"+g.ID, "", member(outsider))
	e.h.HandleGet(rec, testutil.WithChiURLParam(req, "groupID", g.ID))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestDeleteScrubsMembers(t *testing.T) {
	e := setup(t)
	ctx := testutil.TestContext(t)
	leader := e.f.CreateMember(ctx, "Lee", "lee@example.com")
	other := e.f.CreateMember(ctx, "Jo", "jo@example.com")
	g := e.f.CreateCustomGroup(ctx, "Hike", "HIKE01", leader.ID, other.ID)
	for _, id := range []string{leader.ID, other.ID} {
		if err := e.users.SetGroupRef(ctx, id, g.ID); err != nil {
			t.Fatalf("SetGroupRef: %v", err)
		}
		e.prefs.SetGroupID(ctx, id, g.ID)
	}

	rec := testutil.NewRecorder()
	req := testutil.NewAuthenticatedRequest("DELETE", "/groups/"+g.ID, "", member(leader))
	e.h.HandleDelete(rec, testutil.WithChiURLParam(req, "groupID", g.ID))
	rec.AssertStatus(t, http.StatusNoContent)

	for _, id := range []string{leader.ID, other.ID} {
		u, err := e.users.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if u.GroupID != "" {
			t.Errorf("profile %s still references %q", id, u.GroupID)
		}
		if _, ok, _ := e.prefs.GroupID(ctx, id); ok {
			t.Errorf("hint for %s not cleared", id)
		}
	}
}

func TestDeleteByNonLeaderForbidden(t *testing.T) {
	e := setup(t)
	ctx := testutil.TestContext(t)
	leader := e.f.CreateMember(ctx, "Lee", "lee@example.com")
	other := e.f.CreateMember(ctx, "Jo", "jo@example.com")
	g := e.f.CreateCustomGroup(ctx, "Hike", "HIKE01", leader.ID, other.ID)

	rec := testutil.NewRecorder()
	req := testutil.NewAuthenticatedRequest("DELETE", "/groups/"+g.ID, "", member(other))
	e.h.HandleDelete(rec, testutil.WithChiURLParam(req, "groupID", g.ID))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestLocationUpsert(t *testing.T) {
	e := setup(t)
	ctx := testutil.TestContext(t)
	leader := e.f.CreateMember(ctx, "Lee", "lee@example.com")
	g := e.f.CreateCustomGroup(ctx, "Hike", "HIKE01", leader.ID)

	rec := testutil.NewRecorder()
	req := testutil.NewAuthenticatedRequest("PUT", "/groups/"+g.ID+"/location",
		`{"lat":38.95,"lng":-92.33,"status":"on the trail"}`, member(leader))
	e.h.HandleLocation(rec, testutil.WithChiURLParam(req, "groupID", g.ID))
	rec.AssertStatus(t, http.StatusNoContent)
}
