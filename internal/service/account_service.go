package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"netmon-auth/internal/model"
	"netmon-auth/internal/password"
	"netmon-auth/internal/repository"
	"netmon-auth/internal/token"
	"netmon-auth/pkg/apierror"
)

const (
	MaxUsernameLength = 255
	TokenTypeBearer   = "bearer"
)

const (
	msgIncorrectLogin      = "Incorrect username or password"
	msgInvalidToken        = "Could not validate credentials"
	msgNotAuthorized       = "Not authorized"
	msgUsernameTaken       = "Username already registered"
	msgUserNotFound        = "User not found"
	msgCannotDeleteAdmin   = "Cannot delete admin user"
	msgCredentialsRequired = "username and password are required"
)

type AccountService struct {
	accounts repository.AccountRepository
	hasher   *password.Hasher
	tokens   *token.Service
	now      func() time.Time
}

func NewAccountService(accounts repository.AccountRepository, hasher *password.Hasher, tokens *token.Service) *AccountService {
	return &AccountService{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		now:      time.Now,
	}
}

// Login checks the credentials and issues an access token. Unknown users and
// wrong passwords fail identically.
func (s *AccountService) Login(ctx context.Context, username string, plain string) (model.TokenResponse, error) {
	username = strings.TrimSpace(username)

	account, err := s.accounts.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, model.ErrAccountNotFound):
		s.hasher.VerifyDummy(plain)
		return model.TokenResponse{}, apierror.Unauthorized(msgIncorrectLogin)
	case err != nil:
		return model.TokenResponse{}, err
	}

	if !s.hasher.Verify(plain, account.PasswordHash) {
		return model.TokenResponse{}, apierror.Unauthorized(msgIncorrectLogin)
	}

	signed, _, err := s.tokens.Issue(account.Username)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	return model.TokenResponse{
		AccessToken: signed,
		TokenType:   TokenTypeBearer,
		IsAdmin:     account.IsAdmin,
		ExpiresIn:   int64(s.tokens.TTL() / time.Second),
	}, nil
}

// Authenticate resolves a bearer token to the account it was issued for.
func (s *AccountService) Authenticate(ctx context.Context, raw string) (model.Account, error) {
	subject, err := s.tokens.Validate(raw)
	if err != nil {
		slog.Debug("token rejected", "error", err)
		return model.Account{}, apierror.Unauthorized(msgInvalidToken)
	}

	account, err := s.accounts.FindByUsername(ctx, subject)
	if errors.Is(err, model.ErrAccountNotFound) {
		return model.Account{}, apierror.Unauthorized(msgInvalidToken)
	}
	if err != nil {
		return model.Account{}, err
	}

	return account, nil
}

// CreateUser adds a non-admin account.
func (s *AccountService) CreateUser(ctx context.Context, req model.CredentialsRequest) (model.AccountView, error) {
	username, err := validateCredentials(req)
	if err != nil {
		return model.AccountView{}, err
	}

	if _, err := s.accounts.FindByUsername(ctx, username); err == nil {
		return model.AccountView{}, apierror.Conflict(msgUsernameTaken, username)
	} else if !errors.Is(err, model.ErrAccountNotFound) {
		return model.AccountView{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AccountView{}, fmt.Errorf("hash password: %w", err)
	}

	account := model.Account{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.Insert(ctx, &account); err != nil {
		if errors.Is(err, model.ErrAccountExists) {
			return model.AccountView{}, apierror.Conflict(msgUsernameTaken, username)
		}
		return model.AccountView{}, err
	}

	slog.Info("account created", "account_id", account.ID, "username", account.Username)
	return account.View(), nil
}

// ListUsers returns every non-admin account ordered by id.
func (s *AccountService) ListUsers(ctx context.Context) ([]model.AccountView, error) {
	accounts, err := s.accounts.ListNonAdmin(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]model.AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, a.View())
	}
	return views, nil
}

// DeleteUser removes a non-admin account by username.
func (s *AccountService) DeleteUser(ctx context.Context, username string) error {
	account, err := s.accounts.FindByUsername(ctx, username)
	if errors.Is(err, model.ErrAccountNotFound) {
		return apierror.NotFound(msgUserNotFound, username)
	}
	if err != nil {
		return err
	}

	if account.IsAdmin {
		return apierror.BadRequest(msgCannotDeleteAdmin, username)
	}

	if err := s.accounts.Delete(ctx, account); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return apierror.NotFound(msgUserNotFound, username)
		}
		return err
	}

	slog.Info("account deleted", "account_id", account.ID, "username", account.Username)
	return nil
}

// RotateAdminCredentials replaces the admin's username and password in
// place. Tokens issued for the old username stop resolving.
func (s *AccountService) RotateAdminCredentials(ctx context.Context, admin model.Account, req model.CredentialsRequest) error {
	if !admin.IsAdmin {
		return apierror.Forbidden(msgNotAuthorized)
	}

	username, err := validateCredentials(req)
	if err != nil {
		return err
	}

	if existing, err := s.accounts.FindByUsername(ctx, username); err == nil {
		if existing.ID != admin.ID {
			return apierror.Conflict(msgUsernameTaken, username)
		}
	} else if !errors.Is(err, model.ErrAccountNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	previous := admin.Username
	admin.Username = username
	admin.PasswordHash = hash
	if err := s.accounts.Update(ctx, admin); err != nil {
		if errors.Is(err, model.ErrAccountExists) {
			return apierror.Conflict(msgUsernameTaken, username)
		}
		return err
	}

	slog.Info("admin credentials rotated", "account_id", admin.ID, "previous_username", previous, "username", username)
	return nil
}

func validateCredentials(req model.CredentialsRequest) (string, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return "", apierror.BadRequest(msgCredentialsRequired, "")
	}
	if len(username) > MaxUsernameLength {
		return "", apierror.BadRequest("username is too long", fmt.Sprintf("max %d bytes", MaxUsernameLength))
	}
	if len(req.Password) > password.MaxLength {
		return "", apierror.BadRequest("password is too long", fmt.Sprintf("max %d bytes", password.MaxLength))
	}
	return username, nil
}

