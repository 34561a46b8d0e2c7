// Package auth реализует регистрацию, вход и обновление токенов.
// Access-токен короткоживущий и подписан HS256, refresh-токен хранится
// в базе и отзывается при каждом обновлении пары.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bikerent-system/internal/model"
	"github.com/mmeshcher/bikerent-system/internal/repository"
)

const refreshTokenTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken возвращается для неизвестного, отозванного
	// или истёкшего refresh-токена.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Repository описывает методы хранилища, используемые сервисом аутентификации.
type Repository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateRefreshToken(ctx context.Context, t *model.RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) error
	RevokeAllUserTokens(ctx context.Context, userID int64, now time.Time) (int64, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenPair содержит пару токенов, выдаваемую при входе и обновлении.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service реализует сценарии аутентификации.
type Service struct {
	repo   Repository
	tokens *TokenService
	logger *zap.Logger
	now    func() time.Time
}

// NewService создаёт сервис аутентификации.
func NewService(repo Repository, tokens *TokenService, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Register создаёт нового пользователя с ролью USER и нулевым балансом.
// Возвращает repository.ErrUserExists, если имя уже занято.
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		RegisteredAt: s.now(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login проверяет пару логин/пароль и выдаёт пару токенов.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issuePair(ctx, user)
}

// Refresh проверяет refresh-токен, отзывает его и выдаёт новую пару.
// Повторное использование отозванного токена отклоняется.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	stored, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	now := s.now()
	if !stored.Valid(now) {
		return nil, ErrInvalidRefreshToken
	}

	if err := s.repo.RevokeRefreshToken(ctx, refreshToken, now); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUser(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	return s.issuePair(ctx, user)
}

// Logout отзывает один refresh-токен.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	err := s.repo.RevokeRefreshToken(ctx, refreshToken, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidRefreshToken
	}
	return err
}

// LogoutAll отзывает все refresh-токены пользователя и возвращает их число.
func (s *Service) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	return s.repo.RevokeAllUserTokens(ctx, userID, s.now())
}

// GetInfo возвращает профиль пользователя.
func (s *Service) GetInfo(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUser(ctx, userID)
}

func (s *Service) issuePair(ctx context.Context, user *model.User) (*TokenPair, error) {
	now := s.now()

	access, err := s.tokens.Issue(user, now)
	if err != nil {
		return nil, err
	}

	refresh := &model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(refreshTokenTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh.Token}, nil
}

// StartTokenCleanup запускает фоновую очистку истёкших и отозванных
// refresh-токенов. Процесс останавливается по отмене контекста.
func (s *Service) StartTokenCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.repo.DeleteExpiredTokens(ctx, s.now())
				if err != nil {
					s.logger.Error("token cleanup failed", zap.Error(err))
					continue
				}
				if deleted > 0 {
					s.logger.Info("expired tokens deleted", zap.Int64("count", deleted))
				}
			}
		}
	}()
}
