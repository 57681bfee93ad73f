package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"netmon-auth/internal/model"
)

const pgUniqueViolation = "23505"

type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

func (r *PostgresAccountRepository) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	var a model.Account
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, is_admin, created_at
		 FROM accounts WHERE username = $1`, username).
		Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find account by username: %w", err)
	}
	return a, nil
}

func (r *PostgresAccountRepository) FindAdmin(ctx context.Context) (model.Account, error) {
	var a model.Account
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, is_admin, created_at
		 FROM accounts WHERE is_admin ORDER BY id LIMIT 1`).
		Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find admin account: %w", err)
	}
	return a, nil
}

func (r *PostgresAccountRepository) Insert(ctx context.Context, a *model.Account) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash, is_admin, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		a.Username, a.PasswordHash, a.IsAdmin, a.CreatedAt).Scan(&a.ID)
	if isPgUniqueViolation(err) {
		return model.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) Update(ctx context.Context, a model.Account) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET username = $2, password_hash = $3 WHERE id = $1`,
		a.ID, a.Username, a.PasswordHash)
	if isPgUniqueViolation(err) {
		return model.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) Delete(ctx context.Context, a model.Account) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, a.ID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) ListNonAdmin(ctx context.Context) ([]model.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, password_hash, is_admin, created_at
		 FROM accounts WHERE NOT is_admin ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0)
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *PostgresAccountRepository) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE is_admin`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count admin accounts: %w", err)
	}
	return count, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
