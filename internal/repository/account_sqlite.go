package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"netmon-auth/internal/model"
)

const sqliteAccountColumns = `id, username, password_hash, is_admin, created_at`

type SQLiteAccountRepository struct {
	db *sql.DB
}

func NewSQLiteAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.CreatedAt)
	return a, err
}

func (r *SQLiteAccountRepository) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find account by username: %w", err)
	}
	return a, nil
}

func (r *SQLiteAccountRepository) FindAdmin(ctx context.Context) (model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE is_admin = 1 ORDER BY id LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find admin account: %w", err)
	}
	return a, nil
}

func (r *SQLiteAccountRepository) Insert(ctx context.Context, a *model.Account) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_hash, is_admin, created_at) VALUES (?, ?, ?, ?)`,
		a.Username, a.PasswordHash, a.IsAdmin, a.CreatedAt)
	if isSQLiteUniqueViolation(err) {
		return model.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	a.ID = id
	return nil
}

func (r *SQLiteAccountRepository) Update(ctx context.Context, a model.Account) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET username = ?, password_hash = ? WHERE id = ?`,
		a.Username, a.PasswordHash, a.ID)
	if isSQLiteUniqueViolation(err) {
		return model.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteAccountRepository) Delete(ctx context.Context, a model.Account) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, a.ID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteAccountRepository) ListNonAdmin(ctx context.Context) ([]model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteAccountColumns+` FROM accounts WHERE is_admin = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *SQLiteAccountRepository) CountAdmins(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE is_admin = 1`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count admin accounts: %w", err)
	}
	return count, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
