// Package model содержит доменные сущности сервиса проката велосипедов.
package model

import "time"

// Role определяет роль пользователя в системе.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User представляет зарегистрированного пользователя проката.
// Баланс и долг хранятся в целых условных единицах и изменяются
// только через операции пакета ledger.
type User struct {
	ID           int64
	Version      int64
	Username     string
	Email        string
	PasswordHash []byte
	Role         Role
	Balance      int64
	Debt         int64
	RegisteredAt time.Time
}

// CanRent сообщает, может ли пользователь открыть новую аренду:
// требуется положительный баланс и отсутствие долга.
func (u *User) CanRent() bool {
	return u.Balance > 0 && u.Debt == 0
}

// Station описывает станцию проката.
type Station struct {
	ID        int64
	Version   int64
	Name      string
	Latitude  float64
	Longitude float64
}

// Technician описывает механика, выполняющего ремонты.
type Technician struct {
	ID             int64
	Name           string
	Phone          string
	Specialization string
}

// Payment описывает факт пополнения баланса пользователя.
type Payment struct {
	ID        int64
	UserID    int64
	Amount    int64
	CreatedAt time.Time
}

// RefreshToken описывает refresh-токен пользователя.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// Expired сообщает, истёк ли срок действия токена к моменту now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Valid сообщает, действителен ли токен: не отозван и не истёк.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// Revoke отзывает токен.
func (t *RefreshToken) Revoke(now time.Time) {
	t.Revoked = true
	t.RevokedAt = &now
}
