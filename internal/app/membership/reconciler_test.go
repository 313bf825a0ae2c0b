package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	groupstore "github.com/musterapp/muster/internal/app/store/groups"
	"github.com/musterapp/muster/internal/app/store/prefs"
	userstore "github.com/musterapp/muster/internal/app/store/users"
	"github.com/musterapp/muster/internal/app/system/backoff"
	"github.com/musterapp/muster/internal/domain/models"

	"go.uber.org/zap"
)

// fakeUsers implements ProfileStore. failures counts down before a
// stored user becomes visible, simulating write-then-read lag.
type fakeUsers struct {
	users    map[string]models.User
	failures int
	fetchErr error
	groupRef map[string]string
	gets     int
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]models.User), groupRef: make(map[string]string)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (models.User, error) {
	f.gets++
	if f.fetchErr != nil {
		return models.User{}, f.fetchErr
	}
	if f.failures > 0 {
		f.failures--
		return models.User{}, userstore.ErrNotFound
	}
	u, ok := f.users[id]
	if !ok {
		return models.User{}, userstore.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) SetGroupRef(_ context.Context, id, groupID string) error {
	f.groupRef[id] = groupID
	return nil
}

// fakeGroups implements GroupStore with set-semantics membership.
type fakeGroups struct {
	groups  map[string]*models.Group
	getErr  error
	addErr  error
	ensures int
}

func newFakeGroups(groups ...models.Group) *fakeGroups {
	f := &fakeGroups{groups: make(map[string]*models.Group)}
	for i := range groups {
		g := groups[i]
		f.groups[g.ID] = &g
	}
	return f
}

func (f *fakeGroups) GetByID(_ context.Context, id string) (models.Group, error) {
	if f.getErr != nil {
		return models.Group{}, f.getErr
	}
	g, ok := f.groups[id]
	if !ok {
		return models.Group{}, groupstore.ErrNotFound
	}
	return *g, nil
}

func (f *fakeGroups) EnsureSpecial(_ context.Context, roleClass string) (models.Group, error) {
	f.ensures++
	id := models.SpecialGroupID(roleClass)
	if g, ok := f.groups[id]; ok {
		return *g, nil
	}
	g := &models.Group{ID: id, Name: roleClass, Kind: models.KindSpecial}
	f.groups[id] = g
	return *g, nil
}

func (f *fakeGroups) AddMember(_ context.Context, groupID, userID string) error {
	if f.addErr != nil {
		return f.addErr
	}
	g, ok := f.groups[groupID]
	if !ok {
		if class, special := models.SpecialRoleClass(groupID); special {
			g = &models.Group{ID: groupID, Name: class, Kind: models.KindSpecial}
			f.groups[groupID] = g
		} else {
			return groupstore.ErrNotFound
		}
	}
	if !g.HasMember(userID) {
		g.MemberIDs = append(g.MemberIDs, userID)
	}
	return nil
}

func (f *fakeGroups) memberCount(groupID, userID string) int {
	g, ok := f.groups[groupID]
	if !ok {
		return 0
	}
	n := 0
	for _, id := range g.MemberIDs {
		if id == userID {
			n++
		}
	}
	return n
}

// instantRetry keeps the production attempt budget without sleeping.
func instantRetry() backoff.Policy {
	return backoff.Policy{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Sleep:    func(context.Context, time.Duration) error { return nil },
	}
}

func newTestReconciler(users *fakeUsers, groups *fakeGroups, store prefs.Store, opts ...Option) (*Reconciler, *Hub) {
	hub := NewHub()
	opts = append([]Option{WithRetryPolicy(instantRetry())}, opts...)
	return New(users, groups, store, hub, zap.NewNop(), opts...), hub
}

func TestResolve_PrivilegedRoleConverges(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleVolunteer})
	groups := newFakeGroups()
	store := prefs.NewMemory()
	r, _ := newTestReconciler(users, groups, store)
	ctx := context.Background()

	wantGroup := models.SpecialGroupID("volunteers")
	var results []Resolution
	for i := 0; i < 3; i++ {
		results = append(results, r.Resolve(ctx, "u1"))
	}

	for i, res := range results {
		if res.State != StateResolved || res.GroupID != wantGroup {
			t.Fatalf("run %d: got %+v, want resolved %s", i, res, wantGroup)
		}
	}
	if n := groups.memberCount(wantGroup, "u1"); n != 1 {
		t.Errorf("member count after 3 runs: got %d, want exactly 1", n)
	}
	if id, ok, _ := store.GroupID(ctx, "u1"); !ok || id != wantGroup {
		t.Errorf("cached hint: got (%q, %v), want %s", id, ok, wantGroup)
	}
	if users.groupRef["u1"] != wantGroup {
		t.Errorf("profile mirror: got %q, want %s", users.groupRef["u1"], wantGroup)
	}
}

func TestResolve_OrganizerGetsOwnSingleton(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleOrganizer})
	r, _ := newTestReconciler(users, newFakeGroups(), prefs.NewMemory())

	res := r.Resolve(context.Background(), "u1")
	if res.State != StateResolved || res.GroupID != models.SpecialGroupID("organizers") {
		t.Fatalf("got %+v, want resolved organizers singleton", res)
	}
}

func TestResolve_ProfileVisibilityLagRetried(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleVolunteer})
	users.failures = 2 // visible on the third read

	var delays []time.Duration
	policy := backoff.Policy{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	r, _ := newTestReconciler(users, newFakeGroups(), prefs.NewMemory(), WithRetryPolicy(policy))

	res := r.Resolve(context.Background(), "u1")
	if res.State != StateResolved {
		t.Fatalf("got %+v, want resolved after retries", res)
	}
	if users.gets != 3 {
		t.Errorf("profile reads: got %d, want 3", users.gets)
	}
	want := []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("backoff delays: got %v, want %v", delays, want)
	}
}

func TestResolve_NoProfileAfterRetriesNeedsOnboarding(t *testing.T) {
	users := newFakeUsers() // no profile at all
	r, _ := newTestReconciler(users, newFakeGroups(), prefs.NewMemory())

	res := r.Resolve(context.Background(), "ghost")
	if res.State != StateNeedsOnboarding {
		t.Fatalf("got %+v, want needs_onboarding", res)
	}
	if users.gets != 3 {
		t.Errorf("profile reads: got %d, want full retry budget of 3", users.gets)
	}
}

func TestResolve_UnassignedRoleNeedsOnboarding(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleUnassigned})
	r, _ := newTestReconciler(users, newFakeGroups(), prefs.NewMemory())

	if res := r.Resolve(context.Background(), "u1"); res.State != StateNeedsOnboarding {
		t.Fatalf("got %+v, want needs_onboarding", res)
	}
}

func TestResolve_MemberWithoutHintNeedsOnboarding(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleMember})
	r, _ := newTestReconciler(users, newFakeGroups(), prefs.NewMemory())

	if res := r.Resolve(context.Background(), "u1"); res.State != StateNeedsOnboarding {
		t.Fatalf("got %+v, want needs_onboarding", res)
	}
}

func TestResolve_MemberMissingFromGroupRepairedForward(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleMember})
	groups := newFakeGroups(models.Group{ID: "g1", Kind: models.KindCustom, MemberIDs: []string{"other"}})
	store := prefs.NewMemory()
	ctx := context.Background()
	_ = store.SetGroupID(ctx, "u1", "g1")

	r, _ := newTestReconciler(users, groups, store)
	res := r.Resolve(ctx, "u1")
	if res.State != StateResolved || res.GroupID != "g1" {
		t.Fatalf("got %+v, want resolved g1", res)
	}
	if n := groups.memberCount("g1", "u1"); n != 1 {
		t.Errorf("membership after repair: got %d entries, want 1", n)
	}
}

func TestResolve_DeadHintClearedAndOnboarding(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleMember})
	store := prefs.NewMemory()
	ctx := context.Background()
	_ = store.SetGroupID(ctx, "u1", "g-deleted")

	r, _ := newTestReconciler(users, newFakeGroups(), store)
	res := r.Resolve(ctx, "u1")
	if res.State != StateNeedsOnboarding {
		t.Fatalf("got %+v, want needs_onboarding", res)
	}
	if _, ok, _ := store.GroupID(ctx, "u1"); ok {
		t.Error("dead hint was not cleared")
	}
}

func TestResolve_MembershipHoldsReaffirmsHint(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleMember})
	groups := newFakeGroups(models.Group{ID: "g1", Kind: models.KindCustom, MemberIDs: []string{"u1"}})
	store := prefs.NewMemory()
	ctx := context.Background()
	_ = store.SetGroupID(ctx, "u1", "g1")

	r, _ := newTestReconciler(users, groups, store)
	res := r.Resolve(ctx, "u1")
	if res.State != StateResolved || res.GroupID != "g1" || res.Stale {
		t.Fatalf("got %+v, want fresh resolved g1", res)
	}
	if n := groups.memberCount("g1", "u1"); n != 1 {
		t.Errorf("member count: got %d, want 1", n)
	}
	if users.groupRef["u1"] != "g1" {
		t.Errorf("profile mirror not re-affirmed: got %q", users.groupRef["u1"])
	}
}

func TestResolve_GroupFetchFailureServesCachedHint(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleMember})
	groups := newFakeGroups()
	groups.getErr = errors.New("network timeout")
	store := prefs.NewMemory()
	ctx := context.Background()
	_ = store.SetGroupID(ctx, "u1", "g1")

	r, _ := newTestReconciler(users, groups, store)
	res := r.Resolve(ctx, "u1")
	if res.State != StateResolved || res.GroupID != "g1" || !res.Stale {
		t.Fatalf("got %+v, want stale resolved g1", res)
	}
}

func TestResolve_ProfileFetchFailureFallsBackToCache(t *testing.T) {
	users := newFakeUsers()
	users.fetchErr = errors.New("store unreachable")
	store := prefs.NewMemory()
	ctx := context.Background()
	_ = store.SetGroupID(ctx, "u1", "g1")

	r, _ := newTestReconciler(users, newFakeGroups(), store)
	res := r.Resolve(ctx, "u1")
	if res.State != StateResolved || res.GroupID != "g1" || !res.Stale {
		t.Fatalf("got %+v, want stale resolved g1 from cache", res)
	}
}

func TestResolve_ProfileFetchFailureNoCacheNeedsOnboarding(t *testing.T) {
	users := newFakeUsers()
	users.fetchErr = errors.New("store unreachable")

	r, _ := newTestReconciler(users, newFakeGroups(), prefs.NewMemory())
	res := r.Resolve(context.Background(), "u1")
	if res.State != StateNeedsOnboarding {
		t.Fatalf("got %+v, want needs_onboarding with no cache", res)
	}
}

func TestResolve_SupersededIdentitySkipsWrites(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleVolunteer})
	groups := newFakeGroups()
	store := prefs.NewMemory()

	r, hub := newTestReconciler(users, groups, store,
		WithCurrentFunc(func(string) bool { return false }))
	events, cancel := hub.Subscribe(1)
	defer cancel()

	res := r.Resolve(context.Background(), "u1")
	if res.State != StateSuperseded {
		t.Fatalf("got %+v, want superseded", res)
	}
	if n := groups.memberCount(models.SpecialGroupID("volunteers"), "u1"); n != 0 {
		t.Errorf("superseded run still wrote membership (%d entries)", n)
	}
	if _, ok, _ := store.GroupID(context.Background(), "u1"); ok {
		t.Error("superseded run still wrote the hint")
	}
	select {
	case ev := <-events:
		t.Errorf("superseded result was published: %+v", ev)
	default:
	}
}

func TestResolve_PublishesResolution(t *testing.T) {
	users := newFakeUsers(models.User{ID: "u1", Role: models.RoleVolunteer})
	r, hub := newTestReconciler(users, newFakeGroups(), prefs.NewMemory())
	events, cancel := hub.Subscribe(1)
	defer cancel()

	r.Resolve(context.Background(), "u1")

	select {
	case ev := <-events:
		if ev.State != StateResolved || ev.UserID != "u1" {
			t.Errorf("published event: got %+v", ev)
		}
	default:
		t.Fatal("no event published")
	}
}
