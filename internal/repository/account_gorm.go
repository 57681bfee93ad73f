package repository

import (
	"context"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"netmon-auth/internal/model"
)

const mysqlDuplicateEntry = 1062

type GormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	var a model.Account
	err := r.db.WithContext(ctx).Where("username = ?", username).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find account by username: %w", err)
	}
	return a, nil
}

func (r *GormAccountRepository) FindAdmin(ctx context.Context) (model.Account, error) {
	var a model.Account
	err := r.db.WithContext(ctx).Where("is_admin = ?", true).Order("id").Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find admin account: %w", err)
	}
	return a, nil
}

func (r *GormAccountRepository) Insert(ctx context.Context, a *model.Account) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if isDuplicateEntry(err) {
		return model.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *GormAccountRepository) Update(ctx context.Context, a model.Account) error {
	res := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{"username": a.Username, "password_hash": a.PasswordHash})
	if isDuplicateEntry(res.Error) {
		return model.ErrAccountExists
	}
	if res.Error != nil {
		return fmt.Errorf("update account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (r *GormAccountRepository) Delete(ctx context.Context, a model.Account) error {
	res := r.db.WithContext(ctx).Delete(&model.Account{}, a.ID)
	if res.Error != nil {
		return fmt.Errorf("delete account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (r *GormAccountRepository) ListNonAdmin(ctx context.Context) ([]model.Account, error) {
	accounts := make([]model.Account, 0)
	if err := r.db.WithContext(ctx).Where("is_admin = ?", false).Order("id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (r *GormAccountRepository) CountAdmins(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Account{}).Where("is_admin = ?", true).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count admin accounts: %w", err)
	}
	return int(count), nil
}

func isDuplicateEntry(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
