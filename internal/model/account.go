package model

import "time"

// Account is a stored login. PasswordHash is a bcrypt digest and never leaves
// the process.
type Account struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;size:255;not null"`
	IsAdmin      bool      `json:"is_admin" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null"`
}

// TableName pins the gorm table to the one created by the migrations.
func (Account) TableName() string {
	return "accounts"
}

// View returns the public representation of the account.
func (a Account) View() AccountView {
	return AccountView{ID: a.ID, Username: a.Username, IsAdmin: a.IsAdmin}
}

type AccountView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	IsAdmin     bool   `json:"is_admin"`
	ExpiresIn   int64  `json:"expires_in"`
}
