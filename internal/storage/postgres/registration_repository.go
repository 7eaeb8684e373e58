package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vsmclub/clubcore/internal/domain"
)

type RegistrationRepository struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepository(pool *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{pool: pool}
}

func (r *RegistrationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *RegistrationRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	return r.getEvent(ctx, eventID, false)
}

// GetEventForUpdate locks the event row for the rest of the transaction.
// Every capacity check-and-admit, manual confirm and promotion runs under
// this lock, which serializes concurrent mutations per event.
func (r *RegistrationRepository) GetEventForUpdate(ctx context.Context, eventID string) (domain.Event, error) {
	return r.getEvent(ctx, eventID, true)
}

func (r *RegistrationRepository) getEvent(ctx context.Context, eventID string, forUpdate bool) (domain.Event, error) {
	query := `
SELECT id, name, capacity, confirmed_count, starts_at, created_at
FROM events
WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var e domain.Event
	err := r.queryRow(ctx, query, eventID).
		Scan(&e.ID, &e.Name, &e.Capacity, &e.ConfirmedCount, &e.StartsAt, &e.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Event{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *RegistrationRepository) UpdateEventCapacity(ctx context.Context, eventID string, capacity int) error {
	const stmt = `UPDATE events SET capacity = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, eventID, capacity)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrCapacityBelowConfirmed
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update event capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *RegistrationRepository) IncrementConfirmed(ctx context.Context, eventID string) error {
	const stmt = `UPDATE events SET confirmed_count = confirmed_count + 1 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, eventID)
	if err != nil {
		// The confirmed_count <= capacity check constraint is the last
		// line of defence against overbooking.
		if isCheckViolation(err) {
			return domain.ErrCapacityExceeded
		}
		return fmt.Errorf("increment confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *RegistrationRepository) DecrementConfirmed(ctx context.Context, eventID string) error {
	const stmt = `UPDATE events SET confirmed_count = confirmed_count - 1 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, eventID)
	if err != nil {
		return fmt.Errorf("decrement confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *RegistrationRepository) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	const query = `
SELECT id, name, email, password_hash, role, active, created_at
FROM accounts
WHERE id = $1`

	var a domain.Account
	err := r.queryRow(ctx, query, accountID).
		Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.Active, &a.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Account{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *RegistrationRepository) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	const query = `
SELECT id, event_id, account_id, status, registered_at
FROM registrations
WHERE id = $1`

	var reg domain.Registration
	err := r.queryRow(ctx, query, id).
		Scan(&reg.ID, &reg.EventID, &reg.AccountID, &reg.Status, &reg.RegisteredAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Registration{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Registration{}, domain.ErrRegistrationNotFound
		}
		return domain.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) FindActiveRegistration(ctx context.Context, eventID, accountID string) (*domain.Registration, error) {
	const query = `
SELECT id, event_id, account_id, status, registered_at
FROM registrations
WHERE event_id = $1 AND account_id = $2 AND status <> 'cancelled'`

	var reg domain.Registration
	err := r.queryRow(ctx, query, eventID, accountID).
		Scan(&reg.ID, &reg.EventID, &reg.AccountID, &reg.Status, &reg.RegisteredAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return &reg, nil
}

func (r *RegistrationRepository) CreateRegistration(ctx context.Context, reg domain.Registration) error {
	const stmt = `
INSERT INTO registrations (id, event_id, account_id, status, registered_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt,
		reg.ID,
		reg.EventID,
		reg.AccountID,
		reg.Status,
		reg.RegisteredAt,
	)
	if err != nil {
		// Partial unique index on (event_id, account_id) over non-cancelled
		// rows backs the in-service duplicate check.
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRegistration
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) UpdateRegistrationStatus(ctx context.Context, id string, status domain.Status) error {
	const stmt = `UPDATE registrations SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update registration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

func (r *RegistrationRepository) OldestWaitlisted(ctx context.Context, eventID string) (*domain.Registration, error) {
	const query = `
SELECT id, event_id, account_id, status, registered_at
FROM registrations
WHERE event_id = $1 AND status = 'waitlist'
ORDER BY registered_at ASC, id ASC
LIMIT 1`

	var reg domain.Registration
	err := r.queryRow(ctx, query, eventID).
		Scan(&reg.ID, &reg.EventID, &reg.AccountID, &reg.Status, &reg.RegisteredAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest waitlisted: %w", err)
	}
	return &reg, nil
}

func (r *RegistrationRepository) ListRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error) {
	const query = `
SELECT id, event_id, account_id, status, registered_at
FROM registrations
WHERE event_id = $1
ORDER BY registered_at ASC, id ASC`

	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.AccountID, &reg.Status, &reg.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// CreateEvent inserts an event. The registration core never creates
// events; this exists for the operator CLI and tests.
func (r *RegistrationRepository) CreateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
INSERT INTO events (id, name, capacity, confirmed_count, starts_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt,
		event.ID,
		event.Name,
		event.Capacity,
		event.ConfirmedCount,
		event.StartsAt,
		event.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *RegistrationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *RegistrationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
