package app

import (
	"context"

	"github.com/vsmclub/clubcore/internal/clock"
	"github.com/vsmclub/clubcore/internal/domain"
)

type RegistrationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetEventForUpdate(ctx context.Context, eventID string) (domain.Event, error)
	UpdateEventCapacity(ctx context.Context, eventID string, capacity int) error
	IncrementConfirmed(ctx context.Context, eventID string) error
	DecrementConfirmed(ctx context.Context, eventID string) error
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)
	GetRegistration(ctx context.Context, id string) (domain.Registration, error)
	FindActiveRegistration(ctx context.Context, eventID, accountID string) (*domain.Registration, error)
	CreateRegistration(ctx context.Context, reg domain.Registration) error
	UpdateRegistrationStatus(ctx context.Context, id string, status domain.Status) error
	OldestWaitlisted(ctx context.Context, eventID string) (*domain.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error)
}

// RegistrationService keeps registrations consistent with event capacity,
// including FIFO promotion from the waitlist when a confirmed slot frees
// up. Every mutation runs under the event's row lock, so the capacity
// check-and-admit is atomic per event.
type RegistrationService struct {
	repo        RegistrationRepository
	clock       clock.Clock
	autoConfirm bool
}

func NewRegistrationService(repo RegistrationRepository, clk clock.Clock, opts ...RegistrationServiceOption) *RegistrationService {
	svc := &RegistrationService{
		repo:  repo,
		clock: clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type RegistrationServiceOption func(*RegistrationService)

// WithAutoConfirm admits new registrations directly as confirmed while
// capacity allows, instead of the default pending-until-moderated flow.
func WithAutoConfirm() RegistrationServiceOption {
	return func(s *RegistrationService) {
		s.autoConfirm = true
	}
}

// Register signs an account up for an event. Below capacity the
// registration starts pending (or confirmed under the auto-confirm
// policy); at or over capacity it waitlists.
func (s *RegistrationService) Register(ctx context.Context, eventID, accountID string) (domain.Registration, error) {
	var result domain.Registration
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := s.repo.GetEventForUpdate(txCtx, eventID)
		if err != nil {
			return err
		}

		account, err := s.repo.GetAccount(txCtx, accountID)
		if err != nil {
			return err
		}
		if !account.Active {
			return domain.ErrAccountInactive
		}

		existing, err := s.repo.FindActiveRegistration(txCtx, eventID, accountID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateRegistration
		}

		status := domain.StatusWaitlist
		if !event.Full() {
			status = domain.StatusPending
			if s.autoConfirm {
				status = domain.StatusConfirmed
				if err := s.repo.IncrementConfirmed(txCtx, eventID); err != nil {
					return err
				}
			}
		}

		reg := domain.Registration{
			ID:           newID(),
			EventID:      eventID,
			AccountID:    accountID,
			Status:       status,
			RegisteredAt: s.clock.Now(),
		}
		if err := s.repo.CreateRegistration(txCtx, reg); err != nil {
			return err
		}
		result = reg
		return nil
	})
	if err != nil {
		return domain.Registration{}, err
	}
	return result, nil
}

// SetStatus moves a registration to newStatus. Members may only cancel
// their own registration; every other transition is staff-only. Moving
// into confirmed re-checks capacity so an operator cannot overbook, and
// cancelling a confirmed registration promotes the oldest waitlisted one.
func (s *RegistrationService) SetStatus(ctx context.Context, registrationID string, newStatus domain.Status, actor domain.Account) (domain.Registration, error) {
	if !newStatus.Valid() {
		return domain.Registration{}, domain.ErrInvalidStateTransition
	}

	var result domain.Registration
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		reg, err := s.repo.GetRegistration(txCtx, registrationID)
		if err != nil {
			return err
		}

		if newStatus == domain.StatusCancelled {
			if actor.ID != reg.AccountID && !actor.Role.Staff() {
				return domain.ErrNotAuthorized
			}
		} else if !actor.Role.Staff() {
			return domain.ErrNotAuthorized
		}

		event, err := s.repo.GetEventForUpdate(txCtx, reg.EventID)
		if err != nil {
			return err
		}
		// Re-read under the event lock: a concurrent transaction may have
		// moved the registration between the first read and the lock.
		reg, err = s.repo.GetRegistration(txCtx, registrationID)
		if err != nil {
			return err
		}

		reg, err = s.applyTransition(txCtx, reg, newStatus, event)
		if err != nil {
			return err
		}
		result = reg
		return nil
	})
	if err != nil {
		return domain.Registration{}, err
	}
	return result, nil
}

// Cancel is SetStatus to cancelled: permitted for the registration's own
// account and for staff.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID string, actor domain.Account) (domain.Registration, error) {
	return s.SetStatus(ctx, registrationID, domain.StatusCancelled, actor)
}

// applyTransition enforces the transition table and keeps the confirmed
// counter in step. Caller holds the event row lock.
func (s *RegistrationService) applyTransition(txCtx context.Context, reg domain.Registration, newStatus domain.Status, event domain.Event) (domain.Registration, error) {
	if !reg.Status.CanTransitionTo(newStatus) {
		return domain.Registration{}, domain.ErrInvalidStateTransition
	}

	if newStatus == domain.StatusConfirmed {
		if event.Full() {
			return domain.Registration{}, domain.ErrCapacityExceeded
		}
		if err := s.repo.IncrementConfirmed(txCtx, event.ID); err != nil {
			return domain.Registration{}, err
		}
	}

	if newStatus == domain.StatusCancelled && reg.Status == domain.StatusConfirmed {
		if err := s.repo.DecrementConfirmed(txCtx, event.ID); err != nil {
			return domain.Registration{}, err
		}
		if err := s.promoteOldest(txCtx, event.ID); err != nil {
			return domain.Registration{}, err
		}
	}

	if err := s.repo.UpdateRegistrationStatus(txCtx, reg.ID, newStatus); err != nil {
		return domain.Registration{}, err
	}
	reg.Status = newStatus
	return reg, nil
}

// promoteOldest fills a freed confirmed slot with the oldest waitlisted
// registration, FIFO by registered_at. No-op when the waitlist is empty.
func (s *RegistrationService) promoteOldest(txCtx context.Context, eventID string) error {
	next, err := s.repo.OldestWaitlisted(txCtx, eventID)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := s.repo.UpdateRegistrationStatus(txCtx, next.ID, domain.StatusConfirmed); err != nil {
		return err
	}
	return s.repo.IncrementConfirmed(txCtx, eventID)
}

// SetCapacity adjusts an event's capacity. Staff only; lowering below the
// current confirmed count is rejected rather than evicting runners.
func (s *RegistrationService) SetCapacity(ctx context.Context, eventID string, capacity int, actor domain.Account) (domain.Event, error) {
	if !actor.Role.Staff() {
		return domain.Event{}, domain.ErrNotAuthorized
	}
	if capacity < 0 {
		return domain.Event{}, domain.ErrInvalidCapacity
	}

	var result domain.Event
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		event, err := s.repo.GetEventForUpdate(txCtx, eventID)
		if err != nil {
			return err
		}
		if capacity < event.ConfirmedCount {
			return domain.ErrCapacityBelowConfirmed
		}
		if err := s.repo.UpdateEventCapacity(txCtx, eventID, capacity); err != nil {
			return err
		}
		event.Capacity = capacity
		result = event
		return nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	return result, nil
}

// ListForEvent returns the event's registrations ordered by registration
// time, a finite restartable projection for the back office.
func (s *RegistrationService) ListForEvent(ctx context.Context, eventID string) ([]domain.Registration, error) {
	if _, err := s.repo.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.repo.ListRegistrations(ctx, eventID)
}
