// internal/app/groupops/groupops.go

// Package groupops implements the explicit group actions: create, join
// by code, leave, kick, and delete. Deletion touches several classes of
// documents that cannot be updated atomically together, so it runs
// under the advisory lock; everything else relies on idempotent set
// operations that converge under concurrent writers.
package groupops

import (
	"context"
	"errors"
	"time"

	"github.com/musterapp/muster/internal/app/membership"
	groupstore "github.com/musterapp/muster/internal/app/store/groups"
	lockstore "github.com/musterapp/muster/internal/app/store/locks"
	"github.com/musterapp/muster/internal/app/store/prefs"
	"github.com/musterapp/muster/internal/app/system/metrics"
	"github.com/musterapp/muster/internal/domain/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidCode  = errors.New("no group with this join code")
	ErrNotLeader    = errors.New("only the group leader may do this")
	ErrSpecialGroup = errors.New("special groups cannot be modified this way")
	ErrLeaderLeave  = errors.New("the leader must delete the group instead of leaving it")

	// ErrBusy is the caller-facing alias for a held lock: the operation
	// should be retried by the user, never queued.
	ErrBusy = lockstore.ErrLockNotAcquired
)

// GroupStore is the slice of the group store this service needs.
type GroupStore interface {
	GetByID(ctx context.Context, id string) (models.Group, error)
	GetByJoinCode(ctx context.Context, code string) (models.Group, error)
	CreateCustom(ctx context.Context, name, leaderID string) (models.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	Delete(ctx context.Context, id string) (int64, error)
}

// UserStore maintains the profile-side group mirror.
type UserStore interface {
	SetGroupRef(ctx context.Context, id, groupID string) error
	ClearGroupRef(ctx context.Context, id, groupID string) error
}

// LocationStore cleans up position records.
type LocationStore interface {
	DeleteByGroup(ctx context.Context, groupID string) (int64, error)
	DeleteByUser(ctx context.Context, groupID, userID string) error
}

// Locker serializes multi-document mutations per resource.
type Locker interface {
	WithLock(ctx context.Context, resourceID, ownerID string, ttl time.Duration, body func(context.Context) error) error
}

type Service struct {
	groups    GroupStore
	users     UserStore
	locations LocationStore
	prefs     prefs.Store
	locks     Locker
	hub       *membership.Hub
	log       *zap.Logger
	lockTTL   time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithLockTTL overrides the advisory-lock lease length.
func WithLockTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func New(groups GroupStore, users UserStore, locations LocationStore, pstore prefs.Store, locks Locker, hub *membership.Hub, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		groups:    groups,
		users:     users,
		locations: locations,
		prefs:     pstore,
		locks:     locks,
		hub:       hub,
		log:       log,
		lockTTL:   lockstore.DefaultTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// lockResource keys the advisory lock for all destructive operations on
// one group, so a delete and a concurrent destructive op contend.
func lockResource(groupID string) string {
	return "group_op_" + groupID
}

// CreateCustom creates a group led by userID and points the session at it.
func (s *Service) CreateCustom(ctx context.Context, name, userID string) (models.Group, error) {
	g, err := s.groups.CreateCustom(ctx, name, userID)
	if err != nil {
		return models.Group{}, err
	}
	s.pointSessionAt(ctx, userID, g.ID)
	s.log.Info("group created",
		zap.String("group_id", g.ID), zap.String("leader_id", userID))
	return g, nil
}

// JoinByCode adds userID to the custom group matching code.
func (s *Service) JoinByCode(ctx context.Context, code, userID string) (models.Group, error) {
	g, err := s.groups.GetByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			return models.Group{}, ErrInvalidCode
		}
		return models.Group{}, err
	}
	if g.Kind != models.KindCustom {
		return models.Group{}, ErrInvalidCode
	}
	if err := s.groups.AddMember(ctx, g.ID, userID); err != nil {
		// The group can vanish between lookup and add when a delete
		// wins the race; to the joiner that is an invalid code.
		if errors.Is(err, groupstore.ErrNotFound) {
			return models.Group{}, ErrInvalidCode
		}
		return models.Group{}, err
	}
	s.pointSessionAt(ctx, userID, g.ID)
	s.log.Info("member joined group",
		zap.String("group_id", g.ID), zap.String("user_id", userID))
	return g, nil
}

// Leave removes userID from the group and clears every cached
// reference. This is the explicit eviction path: unlike the reconciler,
// which repairs membership forward, leaving really does evict.
func (s *Service) Leave(ctx context.Context, groupID, userID string) error {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Kind == models.KindSpecial {
		return ErrSpecialGroup
	}
	if g.LeaderID == userID {
		return ErrLeaderLeave
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.evictSession(ctx, groupID, userID)
	s.log.Info("member left group",
		zap.String("group_id", groupID), zap.String("user_id", userID))
	return nil
}

// Kick removes targetID from the group on behalf of its leader.
func (s *Service) Kick(ctx context.Context, groupID, actorID, targetID string) error {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Kind == models.KindSpecial {
		return ErrSpecialGroup
	}
	if g.LeaderID != actorID {
		return ErrNotLeader
	}
	if targetID == actorID {
		return ErrLeaderLeave
	}
	if err := s.groups.RemoveMember(ctx, groupID, targetID); err != nil {
		return err
	}
	s.evictSession(ctx, groupID, targetID)
	s.log.Info("member kicked from group",
		zap.String("group_id", groupID), zap.String("user_id", targetID), zap.String("actor_id", actorID))
	return nil
}

// Delete removes the group document and scrubs the group reference from
// every member's profile and cached preferences, plus the group's
// location records. Those documents cannot be updated atomically
// together, so the whole operation runs under the group's advisory lock: the
// lock bounds the window in which a half-completed deletion could be
// observed or raced by a concurrent join. A held lock surfaces as
// ErrBusy without queueing.
func (s *Service) Delete(ctx context.Context, groupID, actorID string) error {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Kind == models.KindSpecial {
		return ErrSpecialGroup
	}
	if g.LeaderID != actorID {
		return ErrNotLeader
	}

	ownerID := uuid.NewString()
	return s.locks.WithLock(ctx, lockResource(groupID), ownerID, s.lockTTL, func(ctx context.Context) error {
		// Re-read under the lock: members may have joined since the
		// pre-lock authorization check.
		g, err := s.groups.GetByID(ctx, groupID)
		if err != nil {
			return err
		}

		removed, err := s.locations.DeleteByGroup(ctx, groupID)
		if err != nil {
			return err
		}

		for _, memberID := range g.MemberIDs {
			if err := s.users.ClearGroupRef(ctx, memberID, groupID); err != nil {
				return err
			}
			if err := s.prefs.Clear(ctx, memberID); err != nil {
				// A stale hint self-heals on the member's next
				// reconciliation, so a cache miss here is not fatal.
				s.log.Warn("delete: clearing member hint failed",
					zap.String("group_id", groupID), zap.String("user_id", memberID), zap.Error(err))
			}
			s.hub.Publish(membership.Resolution{UserID: memberID, State: membership.StateNeedsOnboarding})
		}

		if _, err := s.groups.Delete(ctx, groupID); err != nil {
			return err
		}
		metrics.GroupDeletionsTotal.Inc()
		s.log.Info("group deleted",
			zap.String("group_id", groupID),
			zap.String("actor_id", actorID),
			zap.Int("members_scrubbed", len(g.MemberIDs)),
			zap.Int64("locations_removed", removed))
		return nil
	})
}

// pointSessionAt updates both cached references after a join/create.
func (s *Service) pointSessionAt(ctx context.Context, userID, groupID string) {
	if err := s.prefs.SetGroupID(ctx, userID, groupID); err != nil {
		s.log.Warn("group hint write failed",
			zap.String("user_id", userID), zap.String("group_id", groupID), zap.Error(err))
	}
	if err := s.users.SetGroupRef(ctx, userID, groupID); err != nil {
		s.log.Warn("profile group mirror failed",
			zap.String("user_id", userID), zap.String("group_id", groupID), zap.Error(err))
	}
	s.hub.Publish(membership.Resolution{UserID: userID, GroupID: groupID, State: membership.StateResolved})
}

// evictSession clears cached references after an explicit removal.
func (s *Service) evictSession(ctx context.Context, groupID, userID string) {
	if err := s.locations.DeleteByUser(ctx, groupID, userID); err != nil {
		s.log.Warn("location cleanup failed",
			zap.String("group_id", groupID), zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.users.ClearGroupRef(ctx, userID, groupID); err != nil {
		s.log.Warn("profile group mirror clear failed",
			zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.prefs.Clear(ctx, userID); err != nil {
		s.log.Warn("group hint clear failed",
			zap.String("user_id", userID), zap.Error(err))
	}
	s.hub.Publish(membership.Resolution{UserID: userID, State: membership.StateNeedsOnboarding})
}
