package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vsmclub/clubcore/internal/app"
	"github.com/vsmclub/clubcore/internal/clock"
	"github.com/vsmclub/clubcore/internal/domain"
	"github.com/vsmclub/clubcore/internal/testutil"
)

func TestRegistrationRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewRegistrationRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("GetEventForUpdate returns event and maps errors", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		eventID := testutil.InsertEvent(t, ctx, pool, "Sunday Long Run", 30)

		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			event, err := repo.GetEventForUpdate(txCtx, eventID)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if event.ID != eventID || event.Capacity != 30 || event.ConfirmedCount != 0 {
				t.Fatalf("unexpected event: %+v", event)
			}

			missingID := "00000000-0000-0000-0000-000000000001"
			if _, err := repo.GetEventForUpdate(txCtx, missingID); err != domain.ErrEventNotFound {
				t.Fatalf("expected ErrEventNotFound, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("tx failed: %v", err)
		}

		if _, err := repo.GetEvent(ctx, "not-a-uuid"); err != domain.ErrInvalidID {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})

	t.Run("IncrementConfirmed is capped by the capacity constraint", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		eventID := testutil.InsertEvent(t, ctx, pool, "Track Night", 1)

		if err := repo.IncrementConfirmed(ctx, eventID); err != nil {
			t.Fatalf("first increment: %v", err)
		}
		if err := repo.IncrementConfirmed(ctx, eventID); err != domain.ErrCapacityExceeded {
			t.Fatalf("expected ErrCapacityExceeded, got %v", err)
		}

		if err := repo.DecrementConfirmed(ctx, eventID); err != nil {
			t.Fatalf("decrement: %v", err)
		}
		event, err := repo.GetEvent(ctx, eventID)
		if err != nil {
			t.Fatalf("get event: %v", err)
		}
		if event.ConfirmedCount != 0 {
			t.Fatalf("expected count 0, got %d", event.ConfirmedCount)
		}
	})

	t.Run("active-registration unique index allows re-register after cancel", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		eventID := testutil.InsertEvent(t, ctx, pool, "Trail Run", 10)
		accountID := testutil.InsertAccount(t, ctx, pool, "runner@club.example", domain.RoleUser)
		now := time.Now().UTC()

		first := testutil.InsertRegistration(t, ctx, pool, eventID, accountID, domain.StatusPending, now)

		err := repo.CreateRegistration(ctx, domain.Registration{
			ID:           "11111111-1111-1111-1111-111111111111",
			EventID:      eventID,
			AccountID:    accountID,
			Status:       domain.StatusPending,
			RegisteredAt: now,
		})
		if err != domain.ErrDuplicateRegistration {
			t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
		}

		if err := repo.UpdateRegistrationStatus(ctx, first, domain.StatusCancelled); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		err = repo.CreateRegistration(ctx, domain.Registration{
			ID:           "11111111-1111-1111-1111-111111111111",
			EventID:      eventID,
			AccountID:    accountID,
			Status:       domain.StatusPending,
			RegisteredAt: now,
		})
		if err != nil {
			t.Fatalf("re-register after cancel: expected no error, got %v", err)
		}
	})

	t.Run("FindActiveRegistration ignores cancelled rows", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		eventID := testutil.InsertEvent(t, ctx, pool, "Trail Run", 10)
		accountID := testutil.InsertAccount(t, ctx, pool, "runner@club.example", domain.RoleUser)
		now := time.Now().UTC()

		testutil.InsertRegistration(t, ctx, pool, eventID, accountID, domain.StatusCancelled, now)

		found, err := repo.FindActiveRegistration(ctx, eventID, accountID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found != nil {
			t.Fatalf("expected nil for cancelled-only, got %+v", found)
		}

		active := testutil.InsertRegistration(t, ctx, pool, eventID, accountID, domain.StatusWaitlist, now)
		found, err = repo.FindActiveRegistration(ctx, eventID, accountID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found == nil || found.ID != active {
			t.Fatalf("expected active registration %s, got %+v", active, found)
		}
	})

	t.Run("OldestWaitlisted is FIFO by registered_at", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		eventID := testutil.InsertEvent(t, ctx, pool, "Trail Run", 0)
		now := time.Now().UTC()

		acctA := testutil.InsertAccount(t, ctx, pool, "a@club.example", domain.RoleUser)
		acctB := testutil.InsertAccount(t, ctx, pool, "b@club.example", domain.RoleUser)

		testutil.InsertRegistration(t, ctx, pool, eventID, acctB, domain.StatusWaitlist, now.Add(time.Minute))
		oldest := testutil.InsertRegistration(t, ctx, pool, eventID, acctA, domain.StatusWaitlist, now)

		found, err := repo.OldestWaitlisted(ctx, eventID)
		if err != nil {
			t.Fatalf("oldest waitlisted: %v", err)
		}
		if found == nil || found.ID != oldest {
			t.Fatalf("expected oldest %s, got %+v", oldest, found)
		}
	})

	t.Run("ListRegistrations orders by registered_at", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		eventID := testutil.InsertEvent(t, ctx, pool, "Trail Run", 10)
		now := time.Now().UTC()

		acctA := testutil.InsertAccount(t, ctx, pool, "a@club.example", domain.RoleUser)
		acctB := testutil.InsertAccount(t, ctx, pool, "b@club.example", domain.RoleUser)

		second := testutil.InsertRegistration(t, ctx, pool, eventID, acctB, domain.StatusPending, now.Add(time.Minute))
		first := testutil.InsertRegistration(t, ctx, pool, eventID, acctA, domain.StatusConfirmed, now)

		regs, err := repo.ListRegistrations(ctx, eventID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(regs) != 2 || regs[0].ID != first || regs[1].ID != second {
			t.Fatalf("unexpected order: %+v", regs)
		}
	})
}

// The overbooking race the row lock exists for: concurrent registrations
// against a single free slot must admit exactly one.
func TestRegistrationService_Postgres_ConcurrentRegister(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewRegistrationRepository(pool)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	const callers = 8

	eventID := testutil.InsertEvent(t, ctx, pool, "Club Championship", 3)
	testutil.SetConfirmedCount(t, ctx, pool, eventID, 2)

	accountIDs := make([]string, callers)
	for i := range accountIDs {
		accountIDs[i] = testutil.InsertAccount(t, ctx, pool, fmt.Sprintf("runner%d@club.example", i), domain.RoleUser)
	}

	svc := app.NewRegistrationService(repo, clock.NewSystem(), app.WithAutoConfirm())

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(accountID string) {
			defer wg.Done()
			if _, err := svc.Register(ctx, eventID, accountID); err != nil {
				t.Errorf("register %s: %v", accountID, err)
			}
		}(accountIDs[i])
	}
	wg.Wait()

	var confirmed, waitlisted int
	if err := pool.QueryRow(ctx, `
SELECT
	COUNT(*) FILTER (WHERE status = 'confirmed'),
	COUNT(*) FILTER (WHERE status = 'waitlist')
FROM registrations WHERE event_id = $1`, eventID).Scan(&confirmed, &waitlisted); err != nil {
		t.Fatalf("count statuses: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("expected exactly 1 confirmed, got %d", confirmed)
	}
	if waitlisted != callers-1 {
		t.Fatalf("expected %d waitlisted, got %d", callers-1, waitlisted)
	}

	event, err := repo.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if event.ConfirmedCount != 3 {
		t.Fatalf("expected confirmed count 3, got %d", event.ConfirmedCount)
	}
}

// Full promotion flow over real row locks: cancel a confirmed slot on a
// full event and the oldest waitlisted registration takes it.
func TestRegistrationService_Postgres_PromotionOnCancel(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewRegistrationRepository(pool)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Relay", 2)
	svc := app.NewRegistrationService(repo, clock.NewSystem(), app.WithAutoConfirm())

	acctA := testutil.InsertAccount(t, ctx, pool, "a@club.example", domain.RoleUser)
	acctB := testutil.InsertAccount(t, ctx, pool, "b@club.example", domain.RoleUser)
	acctC := testutil.InsertAccount(t, ctx, pool, "c@club.example", domain.RoleUser)

	regA, err := svc.Register(ctx, eventID, acctA)
	if err != nil {
		t.Fatalf("register A: %v", err)
	}
	regB, err := svc.Register(ctx, eventID, acctB)
	if err != nil {
		t.Fatalf("register B: %v", err)
	}
	regC, err := svc.Register(ctx, eventID, acctC)
	if err != nil {
		t.Fatalf("register C: %v", err)
	}
	if regA.Status != domain.StatusConfirmed || regB.Status != domain.StatusConfirmed {
		t.Fatalf("expected A and B confirmed, got %s and %s", regA.Status, regB.Status)
	}
	if regC.Status != domain.StatusWaitlist {
		t.Fatalf("expected C waitlisted, got %s", regC.Status)
	}

	owner := domain.Account{ID: acctA, Role: domain.RoleUser, Active: true}
	if _, err := svc.Cancel(ctx, regA.ID, owner); err != nil {
		t.Fatalf("cancel A: %v", err)
	}

	b, err := repo.GetRegistration(ctx, regB.ID)
	if err != nil {
		t.Fatalf("get B: %v", err)
	}
	c, err := repo.GetRegistration(ctx, regC.ID)
	if err != nil {
		t.Fatalf("get C: %v", err)
	}
	if b.Status != domain.StatusConfirmed {
		t.Fatalf("expected B still confirmed, got %s", b.Status)
	}
	if c.Status != domain.StatusConfirmed {
		t.Fatalf("expected C promoted, got %s", c.Status)
	}

	event, err := repo.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if event.ConfirmedCount != 2 {
		t.Fatalf("expected confirmed count 2, got %d", event.ConfirmedCount)
	}
}
