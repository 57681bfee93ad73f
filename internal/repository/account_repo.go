package repository

import (
	"context"
	"fmt"

	"netmon-auth/internal/config"
	"netmon-auth/internal/database"
	"netmon-auth/internal/model"
)

// AccountRepository persists accounts. Lookups of missing rows return
// model.ErrAccountNotFound; username collisions return model.ErrAccountExists.
// Every method runs a single statement.
type AccountRepository interface {
	FindByUsername(ctx context.Context, username string) (model.Account, error)
	FindAdmin(ctx context.Context) (model.Account, error)
	Insert(ctx context.Context, account *model.Account) error
	Update(ctx context.Context, account model.Account) error
	Delete(ctx context.Context, account model.Account) error
	ListNonAdmin(ctx context.Context) ([]model.Account, error)
	CountAdmins(ctx context.Context) (int, error)
}

// NewAccountRepository returns the implementation matching the driver db was
// opened with.
func NewAccountRepository(db *database.DB) (AccountRepository, error) {
	switch db.Driver {
	case config.DriverPostgres:
		return NewPostgresAccountRepository(db.Pool), nil
	case config.DriverMySQL:
		return NewGormAccountRepository(db.Gorm), nil
	case config.DriverSQLite:
		return NewSQLiteAccountRepository(db.SQL), nil
	default:
		return nil, fmt.Errorf("no account repository for driver %q", db.Driver)
	}
}
