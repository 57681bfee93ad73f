package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"netmon-auth/internal/model"
)

// EnsureAdmin creates the admin account unless one already exists. It
// reports whether an account was created, and refuses to start when the
// store holds more than one admin.
func (s *AccountService) EnsureAdmin(ctx context.Context, username string, plain string) (bool, error) {
	admins, err := s.accounts.CountAdmins(ctx)
	if err != nil {
		return false, fmt.Errorf("count admin accounts: %w", err)
	}
	switch {
	case admins == 1:
		slog.Debug("admin account present, bootstrap skipped")
		return false, nil
	case admins > 1:
		return false, fmt.Errorf("store holds %d admin accounts, expected at most one", admins)
	}

	req := model.CredentialsRequest{Username: username, Password: plain}
	name, err := validateCredentials(req)
	if err != nil {
		return false, fmt.Errorf("bootstrap credentials: %w", err)
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return false, fmt.Errorf("hash bootstrap password: %w", err)
	}

	admin := model.Account{
		Username:     name,
		PasswordHash: hash,
		IsAdmin:      true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.Insert(ctx, &admin); err != nil {
		if !errors.Is(err, model.ErrAccountExists) {
			return false, fmt.Errorf("insert admin account: %w", err)
		}
		// Another instance may have bootstrapped concurrently.
		if n, countErr := s.accounts.CountAdmins(ctx); countErr == nil && n == 1 {
			return false, nil
		}
		return false, fmt.Errorf("bootstrap username %q belongs to a non-admin account", name)
	}

	slog.Warn("admin account created with bootstrap credentials, rotate them via PUT /admin/credentials",
		"account_id", admin.ID, "username", admin.Username)
	return true, nil
}
