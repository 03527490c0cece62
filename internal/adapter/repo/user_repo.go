package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, name, credits, created_at, updated_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by email address.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, name, credits, created_at, updated_at FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// DeductCredits atomically subtracts amount and records a ledger row. The
// balance check and update happen under a row lock so concurrent uploads
// cannot overdraw.
func (r *UserRepositoryPG) DeductCredits(ctx context.Context, userID string, amount int, description string) error {
	if amount <= 0 {
		return fmt.Errorf("repo: deduct amount must be positive, got %d", amount)
	}
	return r.adjustCredits(ctx, userID, -amount, domain.CreditDeduction, description, true)
}

// RefundCredits returns credits after a failed generation run.
func (r *UserRepositoryPG) RefundCredits(ctx context.Context, userID string, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("repo: refund amount must be positive, got %d", amount)
	}
	return r.adjustCredits(ctx, userID, amount, domain.CreditRefund, reason, false)
}

// GrantCredits adds purchased credits.
func (r *UserRepositoryPG) GrantCredits(ctx context.Context, userID string, amount int, description string) error {
	if amount <= 0 {
		return fmt.Errorf("repo: grant amount must be positive, got %d", amount)
	}
	return r.adjustCredits(ctx, userID, amount, domain.CreditPurchase, description, false)
}

func (r *UserRepositoryPG) adjustCredits(ctx context.Context, userID string, delta int, txType domain.CreditTransactionType, description string, checkBalance bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo: begin credit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int
	row := tx.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("repo: lock user row: %w", err)
	}
	if checkBalance && balance+delta < 0 {
		return domain.ErrInsufficientCredits
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET credits = credits + $2, updated_at = NOW() WHERE id = $1`, userID, delta); err != nil {
		return fmt.Errorf("repo: update balance: %w", err)
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO credit_transactions (id, user_id, type, amount, description)
VALUES (gen_random_uuid(), $1, $2, $3, $4);
`, userID, txType, amount, description); err != nil {
		return fmt.Errorf("repo: append ledger: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo: commit credit tx: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
