// internal/app/membership/reconciler.go

// Package membership implements the reconciliation state machine that
// resolves which single group a session should operate against. It is
// the one implementation of logic that previously existed as several
// near-duplicate per-screen variants, parameterized by role policy
// instead of copied.
package membership

import (
	"context"
	"errors"
	"time"

	groupstore "github.com/musterapp/muster/internal/app/store/groups"
	"github.com/musterapp/muster/internal/app/store/prefs"
	userstore "github.com/musterapp/muster/internal/app/store/users"
	"github.com/musterapp/muster/internal/app/system/backoff"
	"github.com/musterapp/muster/internal/app/system/metrics"
	"github.com/musterapp/muster/internal/domain/models"

	"go.uber.org/zap"
)

// State is the terminal outcome of a reconciliation run. Consumers
// pattern-match on it instead of tracking per-screen loading/error
// booleans.
type State string

const (
	// StateResolved means the session has a group to operate against.
	StateResolved State = "resolved"
	// StateNeedsOnboarding means no group could be determined and the
	// user must pick or create one.
	StateNeedsOnboarding State = "needs_onboarding"
	// StateTransient means a temporary failure with no cached hint to
	// fall back on; the caller may simply try again.
	StateTransient State = "transient"
	// StateSuperseded means the identity changed mid-run (e.g. sign-out)
	// and the result was discarded before any write.
	StateSuperseded State = "superseded"
)

// Resolution is the outcome published to the event hub and returned to
// the caller.
type Resolution struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id,omitempty"`
	State   State  `json:"state"`
	// Stale marks a Resolved outcome served from the cached hint
	// because the authoritative store was unreachable.
	Stale bool `json:"stale,omitempty"`
}

// ProfileStore is the slice of the user store the reconciler needs.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	SetGroupRef(ctx context.Context, id, groupID string) error
}

// GroupStore is the slice of the group store the reconciler needs.
type GroupStore interface {
	GetByID(ctx context.Context, id string) (models.Group, error)
	EnsureSpecial(ctx context.Context, roleClass string) (models.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
}

// CurrentFunc reports whether userID is still the signed-in identity.
// Checked before every write so a reconciliation superseded by a
// sign-out cannot write on behalf of the previous identity.
type CurrentFunc func(userID string) bool

// Reconciler resolves a session's group against the authoritative
// store, repairing divergence in the cached hint as it goes. It is
// idempotent and safe to run as overlapping instances: every write it
// performs is a convergent set operation or an idempotent overwrite.
type Reconciler struct {
	users   ProfileStore
	groups  GroupStore
	prefs   prefs.Store
	hub     *Hub
	log     *zap.Logger
	retry   backoff.Policy
	current CurrentFunc
}

// profile reads absorb same-client write-then-read visibility lag: a
// just-created profile may not be visible to an immediate read.
const (
	profileRetryAttempts = 3
	profileRetryBase     = 500 * time.Millisecond
)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithRetryPolicy overrides the profile-fetch retry policy (tests use a
// non-sleeping one).
func WithRetryPolicy(p backoff.Policy) Option {
	return func(r *Reconciler) { r.retry = p }
}

// WithCurrentFunc installs the staleness guard.
func WithCurrentFunc(f CurrentFunc) Option {
	return func(r *Reconciler) { r.current = f }
}

func New(users ProfileStore, groups GroupStore, pstore prefs.Store, hub *Hub, log *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		users:  users,
		groups: groups,
		prefs:  pstore,
		hub:    hub,
		log:    log,
		retry:  backoff.Linear(profileRetryAttempts, profileRetryBase),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve runs one reconciliation for the given identity and publishes
// the outcome. Failures never escape as errors: the contract is a
// tagged Resolution, and a reconciliation problem must degrade to
// last-known-good state rather than break the session.
func (r *Reconciler) Resolve(ctx context.Context, userID string) Resolution {
	res := r.resolve(ctx, userID)
	metrics.ReconcileTotal.WithLabelValues(string(res.State)).Inc()
	if res.State != StateSuperseded {
		r.hub.Publish(res)
	}
	return res
}

func (r *Reconciler) resolve(ctx context.Context, userID string) Resolution {
	u, err := r.fetchProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			// No profile after retries: genuinely not onboarded yet.
			return Resolution{UserID: userID, State: StateNeedsOnboarding}
		}
		r.log.Warn("reconcile: profile fetch failed, falling back to cached hint",
			zap.String("user_id", userID), zap.Error(err))
		return r.fallback(ctx, userID)
	}

	if class, ok := models.RoleClass(u.Role); ok {
		return r.resolvePrivileged(ctx, u, class)
	}
	if u.Role == models.RoleMember {
		return r.resolveMember(ctx, u)
	}
	// Role not chosen yet.
	return Resolution{UserID: userID, State: StateNeedsOnboarding}
}

func (r *Reconciler) fetchProfile(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var ferr error
		u, ferr = r.users.GetByID(ctx, userID)
		return ferr
	})
	return u, err
}

// resolvePrivileged handles volunteer/organizer accounts: ensure the
// singleton group for the role class, make sure the account is in it,
// cache the id. Calling this N times converges on the same group id and
// a member set holding the account exactly once.
func (r *Reconciler) resolvePrivileged(ctx context.Context, u models.User, roleClass string) Resolution {
	g, err := r.groups.EnsureSpecial(ctx, roleClass)
	if err != nil {
		r.log.Warn("reconcile: special group provisioning failed",
			zap.String("user_id", u.ID), zap.String("role_class", roleClass), zap.Error(err))
		return r.fallback(ctx, u.ID)
	}
	if !r.stillCurrent(u.ID) {
		return Resolution{UserID: u.ID, State: StateSuperseded}
	}
	if err := r.groups.AddMember(ctx, g.ID, u.ID); err != nil {
		r.log.Warn("reconcile: special group add failed",
			zap.String("user_id", u.ID), zap.String("group_id", g.ID), zap.Error(err))
		return r.fallback(ctx, u.ID)
	}
	r.writeBack(ctx, u.ID, g.ID)
	return Resolution{UserID: u.ID, GroupID: g.ID, State: StateResolved}
}

// resolveMember handles ordinary accounts, whose group comes from the
// cached hint.
func (r *Reconciler) resolveMember(ctx context.Context, u models.User) Resolution {
	hint, ok, err := r.prefs.GroupID(ctx, u.ID)
	if err != nil {
		r.log.Warn("reconcile: preference store unreachable",
			zap.String("user_id", u.ID), zap.Error(err))
		return Resolution{UserID: u.ID, State: StateTransient}
	}
	if !ok {
		return Resolution{UserID: u.ID, State: StateNeedsOnboarding}
	}

	g, err := r.groups.GetByID(ctx, hint)
	if errors.Is(err, groupstore.ErrNotFound) {
		// The cached group is gone. Clear the hint and onboard again.
		if r.stillCurrent(u.ID) {
			if cerr := r.prefs.Clear(ctx, u.ID); cerr != nil {
				r.log.Warn("reconcile: clearing dead hint failed",
					zap.String("user_id", u.ID), zap.Error(cerr))
			}
		}
		return Resolution{UserID: u.ID, State: StateNeedsOnboarding}
	}
	if err != nil {
		// Authoritative read failed; stale-but-available beats a forced
		// reset into onboarding.
		r.log.Warn("reconcile: group fetch failed, serving cached hint",
			zap.String("user_id", u.ID), zap.String("group_id", hint), zap.Error(err))
		return Resolution{UserID: u.ID, GroupID: hint, State: StateResolved, Stale: true}
	}

	if !g.HasMember(u.ID) {
		// Repair forward: membership loss here is more often a transient
		// write race than an intentional removal; only an explicit leave
		// or kick evicts. Falsely kicking an active user costs far more
		// than occasionally re-adding one.
		if !r.stillCurrent(u.ID) {
			return Resolution{UserID: u.ID, State: StateSuperseded}
		}
		if aerr := r.groups.AddMember(ctx, g.ID, u.ID); aerr != nil {
			if errors.Is(aerr, groupstore.ErrNotFound) {
				// Deleted between fetch and repair.
				_ = r.prefs.Clear(ctx, u.ID)
				return Resolution{UserID: u.ID, State: StateNeedsOnboarding}
			}
			r.log.Warn("reconcile: membership repair failed",
				zap.String("user_id", u.ID), zap.String("group_id", g.ID), zap.Error(aerr))
			// The group exists and the hint points at it; keep serving it.
			return Resolution{UserID: u.ID, GroupID: g.ID, State: StateResolved, Stale: true}
		}
		metrics.ReconcileRepairsTotal.Inc()
		r.log.Info("reconcile: repaired membership forward",
			zap.String("user_id", u.ID), zap.String("group_id", g.ID))
	}

	r.writeBack(ctx, u.ID, g.ID)
	return Resolution{UserID: u.ID, GroupID: g.ID, State: StateResolved}
}

// fallback serves the cached hint when the authoritative store is
// unreachable, and only declares NeedsOnboarding when no cache exists
// either.
func (r *Reconciler) fallback(ctx context.Context, userID string) Resolution {
	hint, ok, err := r.prefs.GroupID(ctx, userID)
	if err != nil || !ok {
		if err != nil {
			return Resolution{UserID: userID, State: StateTransient}
		}
		return Resolution{UserID: userID, State: StateNeedsOnboarding}
	}
	return Resolution{UserID: userID, GroupID: hint, State: StateResolved, Stale: true}
}

// writeBack re-affirms the cached hint and the profile mirror. Both
// writes overwrite values that may already be correct; failures are
// logged and absorbed since the resolution itself already holds.
func (r *Reconciler) writeBack(ctx context.Context, userID, groupID string) {
	if !r.stillCurrent(userID) {
		return
	}
	if err := r.prefs.SetGroupID(ctx, userID, groupID); err != nil {
		r.log.Warn("reconcile: hint write-back failed",
			zap.String("user_id", userID), zap.String("group_id", groupID), zap.Error(err))
	}
	if err := r.users.SetGroupRef(ctx, userID, groupID); err != nil {
		r.log.Warn("reconcile: profile group mirror failed",
			zap.String("user_id", userID), zap.String("group_id", groupID), zap.Error(err))
	}
}

func (r *Reconciler) stillCurrent(userID string) bool {
	return r.current == nil || r.current(userID)
}
