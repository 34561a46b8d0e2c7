// Package handler содержит HTTP-обработчики API сервиса проката велосипедов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bikerent-system/internal/auth"
	"github.com/mmeshcher/bikerent-system/internal/lock"
	"github.com/mmeshcher/bikerent-system/internal/middleware"
	"github.com/mmeshcher/bikerent-system/internal/model"
	"github.com/mmeshcher/bikerent-system/internal/repository"
	"github.com/mmeshcher/bikerent-system/internal/service"
)

// AuthService определяет контракт сервиса аутентификации.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID int64) (int64, error)
	GetInfo(ctx context.Context, userID int64) (*model.User, error)
}

// ReservationService определяет контракт координатора резервирования.
type ReservationService interface {
	RentStart(ctx context.Context, userID, bicycleID, stationID int64) (*model.Rental, error)
	RentComplete(ctx context.Context, rentalID, endStationID int64) (*model.Rental, error)
	RentCancel(ctx context.Context, rentalID int64) (*model.Rental, error)
	RepairStart(ctx context.Context, bicycleID, technicianID int64, description string) (*model.Repair, error)
	RepairComplete(ctx context.Context, repairID int64) (*model.Repair, error)
}

// CatalogService определяет контракт сервиса справочников и платежей.
type CatalogService interface {
	CreateStation(ctx context.Context, input service.StationInput) (*model.Station, error)
	GetStation(ctx context.Context, id int64) (*model.Station, error)
	ListStations(ctx context.Context) ([]model.Station, error)
	UpdateStation(ctx context.Context, id int64, input service.StationInput) (*model.Station, error)
	DeleteStation(ctx context.Context, id int64) error

	CreateTechnician(ctx context.Context, input service.TechnicianInput) (*model.Technician, error)
	ListTechnicians(ctx context.Context) ([]model.Technician, error)
	DeleteTechnician(ctx context.Context, id int64) error

	CreateBicycle(ctx context.Context, input service.BicycleInput) (*model.Bicycle, error)
	GetBicycle(ctx context.Context, id int64) (*model.Bicycle, error)
	ListBicycles(ctx context.Context, modelFilter string) ([]model.Bicycle, error)
	ListBicyclesNeedingService(ctx context.Context) ([]model.Bicycle, error)
	DeleteBicycle(ctx context.Context, id int64) error

	GetRental(ctx context.Context, id int64) (*model.Rental, error)
	ListRentalsByUser(ctx context.Context, userID int64) ([]model.Rental, error)
	ListRentals(ctx context.Context) ([]model.Rental, error)
	ListRepairs(ctx context.Context) ([]model.Repair, error)

	CreatePayment(ctx context.Context, userID, amount int64) (*model.Payment, error)
	ListPayments(ctx context.Context, userID int64) ([]model.Payment, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	auth           AuthService
	reservations   ReservationService
	catalog        CatalogService
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(a AuthService, r ReservationService, c CatalogService, logger *zap.Logger, am *middleware.AuthMiddleware) *Handler {
	return &Handler{
		auth:           a,
		reservations:   r,
		catalog:        c,
		logger:         logger,
		authMiddleware: am,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError переводит ошибки бизнес-логики в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrStationInUse),
		errors.Is(err, model.ErrBicycleUnavailable),
		errors.Is(err, model.ErrBicycleRented),
		errors.Is(err, model.ErrUserIneligible),
		errors.Is(err, model.ErrRentalNotActive),
		errors.Is(err, model.ErrRepairNotActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrNegativeMileage),
		errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidRefreshToken):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, lock.ErrReservationTimeout),
		errors.Is(err, repository.ErrConcurrentModification):
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	default:
		h.logger.Error(op, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, false
	}
	return userID, ok
}

func isAdmin(r *http.Request) bool {
	role, ok := middleware.GetRoleFromContext(r.Context())
	return ok && role == model.RoleAdmin
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Role         model.Role `json:"role"`
	Balance      int64      `json:"balance"`
	Debt         int64      `json:"debt"`
	RegisteredAt time.Time  `json:"registered_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		Balance:      u.Balance,
		Debt:         u.Debt,
		RegisteredAt: u.RegisteredAt,
	}
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err, "register user error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login выполняет аутентификацию и выдаёт пару токенов.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, err, "login user error")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh обменивает refresh-токен на новую пару токенов.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, err, "refresh token error")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout отзывает переданный refresh-токен.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, err, "logout error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// LogoutAll отзывает все refresh-токены текущего пользователя.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	revoked, err := h.auth.LogoutAll(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "logout all error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"revoked": revoked})
}

// GetMe возвращает профиль текущего пользователя.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.auth.GetInfo(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get user info error")
		return
	}

	h.writeJSON(w, http.StatusOK, toUserResponse(user))
}

type paymentRequest struct {
	Amount int64 `json:"amount"`
}

type paymentResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// CreatePayment пополняет баланс текущего пользователя.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payment, err := h.catalog.CreatePayment(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeError(w, err, "create payment error")
		return
	}

	h.writeJSON(w, http.StatusCreated, paymentResponse{
		ID:        payment.ID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		CreatedAt: payment.CreatedAt,
	})
}

// GetPayments возвращает пополнения текущего пользователя.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	payments, err := h.catalog.ListPayments(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "list payments error")
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, paymentResponse{
			ID:        p.ID,
			UserID:    p.UserID,
			Amount:    p.Amount,
			CreatedAt: p.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
