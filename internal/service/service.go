// Package service реализует операции над справочниками проката
// (станции, механики, велосипеды), пополнения баланса и выдачу списков.
// Изменения состояния велосипедов и аренд выполняет координатор
// резервирования, а не этот пакет.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/bikerent-system/internal/ledger"
	"github.com/mmeshcher/bikerent-system/internal/model"
	"github.com/mmeshcher/bikerent-system/internal/repository"
)

// ErrValidation возвращается при некорректных входных данных.
var ErrValidation = errors.New("validation failed")

// Repository описывает методы хранилища, используемые сервисом.
type Repository interface {
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error

	CreateStation(ctx context.Context, s *model.Station) error
	GetStation(ctx context.Context, id int64) (*model.Station, error)
	ListStations(ctx context.Context) ([]model.Station, error)
	UpdateStation(ctx context.Context, s *model.Station) error
	DeleteStation(ctx context.Context, id int64) error

	CreateTechnician(ctx context.Context, t *model.Technician) error
	GetTechnician(ctx context.Context, id int64) (*model.Technician, error)
	ListTechnicians(ctx context.Context) ([]model.Technician, error)
	DeleteTechnician(ctx context.Context, id int64) error

	CreateBicycle(ctx context.Context, b *model.Bicycle) error
	GetBicycle(ctx context.Context, id int64) (*model.Bicycle, error)
	ListBicycles(ctx context.Context, modelFilter string) ([]model.Bicycle, error)
	ListBicyclesNeedingService(ctx context.Context) ([]model.Bicycle, error)
	DeleteBicycle(ctx context.Context, id int64) error

	GetRental(ctx context.Context, id int64) (*model.Rental, error)
	ListRentalsByUser(ctx context.Context, userID int64) ([]model.Rental, error)
	ListRentals(ctx context.Context) ([]model.Rental, error)
	GetRepair(ctx context.Context, id int64) (*model.Repair, error)
	ListRepairs(ctx context.Context) ([]model.Repair, error)

	ListPaymentsByUser(ctx context.Context, userID int64) ([]model.Payment, error)
}

// StationInput содержит данные для создания или обновления станции.
type StationInput struct {
	Name      string  `validate:"required"`
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

// TechnicianInput содержит данные для создания механика.
type TechnicianInput struct {
	Name           string `validate:"required"`
	Phone          string
	Specialization string
}

// BicycleInput содержит данные для создания велосипеда.
type BicycleInput struct {
	Model     string            `validate:"required"`
	Type      model.BicycleType `validate:"required,oneof=ROAD MOUNTAIN CITY ELECTRIC"`
	StationID int64             `validate:"required"`
}

// Service предоставляет операции над справочниками и платежами.
type Service struct {
	repo     Repository
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService создаёт сервис.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Service) checkInput(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// CreateStation создаёт станцию проката.
func (s *Service) CreateStation(ctx context.Context, input StationInput) (*model.Station, error) {
	if err := s.checkInput(input); err != nil {
		return nil, err
	}
	station := &model.Station{
		Name:      input.Name,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
	}
	if err := s.repo.CreateStation(ctx, station); err != nil {
		return nil, err
	}
	s.logger.Info("station created", zap.Int64("station_id", station.ID))
	return station, nil
}

// GetStation возвращает станцию.
func (s *Service) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	return s.repo.GetStation(ctx, id)
}

// ListStations возвращает все станции.
func (s *Service) ListStations(ctx context.Context) ([]model.Station, error) {
	return s.repo.ListStations(ctx)
}

// UpdateStation обновляет имя и координаты станции.
func (s *Service) UpdateStation(ctx context.Context, id int64, input StationInput) (*model.Station, error) {
	if err := s.checkInput(input); err != nil {
		return nil, err
	}
	station, err := s.repo.GetStation(ctx, id)
	if err != nil {
		return nil, err
	}
	station.Name = input.Name
	station.Latitude = input.Latitude
	station.Longitude = input.Longitude
	if err := s.repo.UpdateStation(ctx, station); err != nil {
		return nil, err
	}
	return station, nil
}

// DeleteStation удаляет станцию. Станция с велосипедами не удаляется,
// возвращается repository.ErrStationInUse.
func (s *Service) DeleteStation(ctx context.Context, id int64) error {
	return s.repo.DeleteStation(ctx, id)
}

// CreateTechnician создаёт механика.
func (s *Service) CreateTechnician(ctx context.Context, input TechnicianInput) (*model.Technician, error) {
	if err := s.checkInput(input); err != nil {
		return nil, err
	}
	technician := &model.Technician{
		Name:           input.Name,
		Phone:          input.Phone,
		Specialization: input.Specialization,
	}
	if err := s.repo.CreateTechnician(ctx, technician); err != nil {
		return nil, err
	}
	return technician, nil
}

// GetTechnician возвращает механика.
func (s *Service) GetTechnician(ctx context.Context, id int64) (*model.Technician, error) {
	return s.repo.GetTechnician(ctx, id)
}

// ListTechnicians возвращает всех механиков.
func (s *Service) ListTechnicians(ctx context.Context) ([]model.Technician, error) {
	return s.repo.ListTechnicians(ctx)
}

// DeleteTechnician удаляет механика.
func (s *Service) DeleteTechnician(ctx context.Context, id int64) error {
	return s.repo.DeleteTechnician(ctx, id)
}

// CreateBicycle добавляет велосипед на станцию в статусе AVAILABLE.
func (s *Service) CreateBicycle(ctx context.Context, input BicycleInput) (*model.Bicycle, error) {
	if err := s.checkInput(input); err != nil {
		return nil, err
	}
	station, err := s.repo.GetStation(ctx, input.StationID)
	if err != nil {
		return nil, fmt.Errorf("fetch station: %w", err)
	}

	bicycle := &model.Bicycle{
		Model:     input.Model,
		Type:      input.Type,
		Status:    model.BicycleStatusAvailable,
		StationID: &station.ID,
	}
	if err := s.repo.CreateBicycle(ctx, bicycle); err != nil {
		return nil, err
	}
	s.logger.Info("bicycle created", zap.Int64("bicycle_id", bicycle.ID))
	return bicycle, nil
}

// GetBicycle возвращает велосипед.
func (s *Service) GetBicycle(ctx context.Context, id int64) (*model.Bicycle, error) {
	return s.repo.GetBicycle(ctx, id)
}

// ListBicycles возвращает велосипеды, при непустом фильтре — только
// с совпадением по названию модели.
func (s *Service) ListBicycles(ctx context.Context, modelFilter string) ([]model.Bicycle, error) {
	return s.repo.ListBicycles(ctx, modelFilter)
}

// ListBicyclesNeedingService возвращает велосипеды с пробегом выше
// порога обслуживания.
func (s *Service) ListBicyclesNeedingService(ctx context.Context) ([]model.Bicycle, error) {
	return s.repo.ListBicyclesNeedingService(ctx)
}

// DeleteBicycle удаляет велосипед. Арендованный велосипед не удаляется,
// возвращается model.ErrBicycleRented.
func (s *Service) DeleteBicycle(ctx context.Context, id int64) error {
	return s.repo.DeleteBicycle(ctx, id)
}

// CreatePayment пополняет баланс пользователя и сохраняет запись о платеже
// в одной транзакции. Сумма должна быть положительной.
func (s *Service) CreatePayment(ctx context.Context, userID, amount int64) (*model.Payment, error) {
	var payment *model.Payment

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("fetch user: %w", err)
		}
		if err := ledger.Credit(user, amount); err != nil {
			return err
		}
		if err := tx.UpdateUser(ctx, user); err != nil {
			return err
		}

		payment = &model.Payment{
			UserID:    user.ID,
			Amount:    amount,
			CreatedAt: s.now(),
		}
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment accepted",
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount))
	return payment, nil
}

// ListPayments возвращает пополнения пользователя.
func (s *Service) ListPayments(ctx context.Context, userID int64) ([]model.Payment, error) {
	return s.repo.ListPaymentsByUser(ctx, userID)
}

// GetRental возвращает аренду.
func (s *Service) GetRental(ctx context.Context, id int64) (*model.Rental, error) {
	return s.repo.GetRental(ctx, id)
}

// ListRentalsByUser возвращает аренды пользователя.
func (s *Service) ListRentalsByUser(ctx context.Context, userID int64) ([]model.Rental, error) {
	return s.repo.ListRentalsByUser(ctx, userID)
}

// ListRentals возвращает все аренды.
func (s *Service) ListRentals(ctx context.Context) ([]model.Rental, error) {
	return s.repo.ListRentals(ctx)
}

// GetRepair возвращает ремонт.
func (s *Service) GetRepair(ctx context.Context, id int64) (*model.Repair, error) {
	return s.repo.GetRepair(ctx, id)
}

// ListRepairs возвращает все ремонты.
func (s *Service) ListRepairs(ctx context.Context) ([]model.Repair, error) {
	return s.repo.ListRepairs(ctx)
}
