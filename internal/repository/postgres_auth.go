package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/bikerent-system/internal/model"
)

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role, balance, debt)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, version, registered_at`,
		u.Username, u.Email, u.PasswordHash, u.Role, u.Balance, u.Debt,
	).Scan(&u.ID, &u.Version, &u.RegisteredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, version, username, email, password_hash, role, balance, debt, registered_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Version, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Balance, &u.Debt, &u.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// GetUser возвращает пользователя по идентификатору без блокировки.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// ListPaymentsByUser возвращает историю пополнений пользователя.
func (r *PostgresRepository) ListPaymentsByUser(ctx context.Context, userID int64) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, created_at FROM payment
		 WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateRefreshToken сохраняет новый refresh-токен.
func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, t *model.RefreshToken) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO refresh_token (user_id, token, expires_at)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		t.UserID, t.Token, t.ExpiresAt,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken возвращает refresh-токен по его значению.
func (r *PostgresRepository) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at
		 FROM refresh_token WHERE token = $1`,
		token,
	)

	var t model.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &t.Revoked, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}

// RevokeRefreshToken отзывает токен по его значению. Уже отозванный токен
// не считается ошибкой.
func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, token string, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_token SET revoked = TRUE, revoked_at = $2
		 WHERE token = $1 AND NOT revoked`,
		token, now,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllUserTokens отзывает все активные токены пользователя и возвращает их число.
func (r *PostgresRepository) RevokeAllUserTokens(ctx context.Context, userID int64, now time.Time) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE refresh_token SET revoked = TRUE, revoked_at = $2
		 WHERE user_id = $1 AND NOT revoked`,
		userID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// DeleteExpiredTokens удаляет истёкшие и отозванные токены и возвращает их число.
func (r *PostgresRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_token WHERE expires_at < $1 OR revoked`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
