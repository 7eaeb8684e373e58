package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vsmclub/clubcore/internal/domain"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *AccountRepository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	const query = `
SELECT id, name, email, password_hash, role, active, created_at
FROM accounts
WHERE email = $1`

	var a domain.Account
	err := r.queryRow(ctx, query, email).
		Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.Active, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `
SELECT id, name, email, password_hash, role, active, created_at
FROM accounts
WHERE id = $1`

	var a domain.Account
	err := r.queryRow(ctx, query, id).
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

func (r *AccountRepository) CreateAccount(ctx context.Context, account domain.Account) error {
	const stmt = `
INSERT INTO accounts (id, name, email, password_hash, role, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.Active,
		account.CreatedAt,
	)
	if err != nil {
		// The unique index on email backs the in-service duplicate check
		// against concurrent sign-ups with the same address.
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdateAccountActive(ctx context.Context, id string, active bool) error {
	const stmt = `UPDATE accounts SET active = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, active)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update account active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *AccountRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
