package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/bikerent-system/internal/model"
	"github.com/mmeshcher/bikerent-system/internal/repository"
)

func newTestService() (*Service, *repository.MemoryRepository) {
	repo := repository.NewMemoryRepository()
	return NewService(repo, zap.NewNop()), repo
}

func TestStationCRUD(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	station, err := svc.CreateStation(ctx, StationInput{Name: "Central", Latitude: 55.75, Longitude: 37.61})
	if err != nil {
		t.Fatalf("create station: %v", err)
	}

	updated, err := svc.UpdateStation(ctx, station.ID, StationInput{Name: "Central Park", Latitude: 55.75, Longitude: 37.61})
	if err != nil {
		t.Fatalf("update station: %v", err)
	}
	if updated.Name != "Central Park" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}

	stations, err := svc.ListStations(ctx)
	if err != nil {
		t.Fatalf("list stations: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("expected 1 station, got %d", len(stations))
	}

	if err := svc.DeleteStation(ctx, station.ID); err != nil {
		t.Fatalf("delete station: %v", err)
	}
	if _, err := svc.GetStation(ctx, station.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStationValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name  string
		input StationInput
	}{
		{"empty name", StationInput{Latitude: 10, Longitude: 10}},
		{"latitude out of range", StationInput{Name: "North Pole", Latitude: 91}},
		{"longitude out of range", StationInput{Name: "Far East", Longitude: 181}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateStation(ctx, tt.input); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestDeleteStationWithBicycles(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	station, err := svc.CreateStation(ctx, StationInput{Name: "Central", Latitude: 55.75, Longitude: 37.61})
	if err != nil {
		t.Fatalf("create station: %v", err)
	}
	repo.AddBicycle(model.Bicycle{
		Model:     "Stels Navigator",
		Type:      model.BicycleTypeCity,
		Status:    model.BicycleStatusAvailable,
		StationID: &station.ID,
	})

	if err := svc.DeleteStation(ctx, station.ID); !errors.Is(err, repository.ErrStationInUse) {
		t.Fatalf("expected ErrStationInUse, got %v", err)
	}
}

func TestBicycleCreateAndList(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	station, err := svc.CreateStation(ctx, StationInput{Name: "Central", Latitude: 55.75, Longitude: 37.61})
	if err != nil {
		t.Fatalf("create station: %v", err)
	}

	if _, err := svc.CreateBicycle(ctx, BicycleInput{Model: "Forward Apache", Type: "SCOOTER", StationID: station.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown type, got %v", err)
	}
	if _, err := svc.CreateBicycle(ctx, BicycleInput{Model: "Forward Apache", Type: model.BicycleTypeCity, StationID: 9000}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown station, got %v", err)
	}

	bicycle, err := svc.CreateBicycle(ctx, BicycleInput{Model: "Forward Apache", Type: model.BicycleTypeCity, StationID: station.ID})
	if err != nil {
		t.Fatalf("create bicycle: %v", err)
	}
	if bicycle.Status != model.BicycleStatusAvailable {
		t.Fatalf("new bicycle must be available, got %s", bicycle.Status)
	}
	if _, err := svc.CreateBicycle(ctx, BicycleInput{Model: "Stels Navigator", Type: model.BicycleTypeMountain, StationID: station.ID}); err != nil {
		t.Fatalf("create bicycle: %v", err)
	}

	all, err := svc.ListBicycles(ctx, "")
	if err != nil {
		t.Fatalf("list bicycles: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 bicycles, got %d", len(all))
	}

	filtered, err := svc.ListBicycles(ctx, "apache")
	if err != nil {
		t.Fatalf("list bicycles with filter: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Model != "Forward Apache" {
		t.Fatalf("unexpected filter result: %+v", filtered)
	}
}

func TestDeleteRentedBicycle(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	id := repo.AddBicycle(model.Bicycle{
		Model:  "Forward Apache",
		Type:   model.BicycleTypeCity,
		Status: model.BicycleStatusRented,
	})

	if err := svc.DeleteBicycle(ctx, id); !errors.Is(err, model.ErrBicycleRented) {
		t.Fatalf("expected ErrBicycleRented, got %v", err)
	}
}

func TestListBicyclesNeedingService(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	repo.AddBicycle(model.Bicycle{Model: "Fresh", Type: model.BicycleTypeCity, Status: model.BicycleStatusAvailable, Mileage: 50})
	worn := repo.AddBicycle(model.Bicycle{Model: "Worn", Type: model.BicycleTypeCity, Status: model.BicycleStatusAvailable, Mileage: 51})

	res, err := svc.ListBicyclesNeedingService(ctx)
	if err != nil {
		t.Fatalf("list needing service: %v", err)
	}
	if len(res) != 1 || res[0].ID != worn {
		t.Fatalf("expected only bicycle %d, got %+v", worn, res)
	}
}

func TestCreatePayment(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	userID := repo.AddUser(model.User{Username: "rider", Balance: 100, Debt: 0})

	payment, err := svc.CreatePayment(ctx, userID, 250)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.Amount != 250 {
		t.Fatalf("expected amount 250, got %d", payment.Amount)
	}

	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Balance != 350 {
		t.Fatalf("expected balance 350, got %d", user.Balance)
	}

	payments, err := svc.ListPayments(ctx, userID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payments))
	}
}

func TestCreatePaymentInvalidAmount(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	userID := repo.AddUser(model.User{Username: "rider"})

	for _, amount := range []int64{0, -10} {
		if _, err := svc.CreatePayment(ctx, userID, amount); !errors.Is(err, model.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}

	payments, _ := svc.ListPayments(ctx, userID)
	if len(payments) != 0 {
		t.Fatalf("rejected payment must not be stored, got %d", len(payments))
	}
}
