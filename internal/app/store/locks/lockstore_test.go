// internal/app/store/locks/lockstore_test.go
package lockstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/musterapp/muster/internal/testutil"

	"go.mongodb.org/mongo-driver/mongo"
)

func setup(t *testing.T) *Store {
	t.Helper()
	return New(testutil.SetupTestDB(t))
}

func TestAcquireFreeResource(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	l, err := s.Get(ctx, "group_op_g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.OwnerID != "owner-a" {
		t.Fatalf("owner = %q; want owner-a", l.OwnerID)
	}
	if !l.ExpiresAt.After(time.Now().UTC()) {
		t.Fatalf("lease already expired: %v", l.ExpiresAt)
	}
}

func TestAcquireHeldByAnother(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := s.Acquire(ctx, "group_op_g1", "owner-b", time.Minute); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("second Acquire err = %v; want ErrLockNotAcquired", err)
	}
}

func TestAcquireReentrantForSameOwner(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	// Re-acquiring extends the lease rather than failing.
	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("re-Acquire by holder: %v", err)
	}
}

func TestExpiredLeaseIsReclaimable(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	base := time.Now()
	s.now = func() time.Time { return base.Add(-2 * time.Minute) }
	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("Acquire in the past: %v", err)
	}

	// owner-a's lease lapsed a minute ago; owner-b takes over without
	// owner-a's cooperation.
	s.now = time.Now
	if err := s.Acquire(ctx, "group_op_g1", "owner-b", time.Minute); err != nil {
		t.Fatalf("Acquire of lapsed lease: %v", err)
	}
	l, err := s.Get(ctx, "group_op_g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l.OwnerID != "owner-b" {
		t.Fatalf("owner = %q; want owner-b", l.OwnerID)
	}
}

func TestReleaseFreesResource(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := s.Release(ctx, "group_op_g1", "owner-a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := s.Acquire(ctx, "group_op_g1", "owner-b", time.Minute); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestReleaseByStrangerIsNoOp(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := s.Release(ctx, "group_op_g1", "owner-b"); err != nil {
		t.Fatalf("foreign Release: %v", err)
	}
	// owner-a still holds the lease.
	if err := s.Acquire(ctx, "group_op_g1", "owner-b", time.Minute); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("Acquire err = %v; want ErrLockNotAcquired", err)
	}
}

func TestWithLockReleasesOnSuccess(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	ran := false
	err := s.WithLock(ctx, "group_op_g1", "owner-a", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Fatal("body did not run")
	}
	if _, err := s.Get(ctx, "group_op_g1"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Fatalf("lease still present after success: %v", err)
	}
}

func TestWithLockReleasesOnBodyError(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	bodyErr := errors.New("scrub failed")
	err := s.WithLock(ctx, "group_op_g1", "owner-a", time.Minute, func(context.Context) error {
		return bodyErr
	})
	if !errors.Is(err, bodyErr) {
		t.Fatalf("WithLock err = %v; want body error", err)
	}
	if _, err := s.Get(ctx, "group_op_g1"); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Fatalf("lease leaked after body error: %v", err)
	}
}

func TestWithLockBusyDoesNotRunBody(t *testing.T) {
	s := setup(t)
	ctx := testutil.TestContext(t)

	if err := s.Acquire(ctx, "group_op_g1", "owner-a", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	err := s.WithLock(ctx, "group_op_g1", "owner-b", time.Minute, func(context.Context) error {
		t.Fatal("body ran while lock was held elsewhere")
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("WithLock err = %v; want ErrLockNotAcquired", err)
	}
}
