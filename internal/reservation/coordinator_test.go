package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bikerent-system/internal/lock"
	"github.com/mmeshcher/bikerent-system/internal/model"
	"github.com/mmeshcher/bikerent-system/internal/repository"
)

type fixture struct {
	repo         *repository.MemoryRepository
	coord        *Coordinator
	userID       int64
	bicycleID    int64
	stationAID   int64
	stationBID   int64
	technicianID int64
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()

	repo := repository.NewMemoryRepository()
	coord := NewCoordinator(repo, lock.NewManager(time.Second), zap.NewNop())

	f := &fixture{repo: repo, coord: coord}
	f.userID = repo.AddUser(model.User{Username: "rider", Balance: balance})
	f.stationAID = repo.AddStation(model.Station{Name: "Central"})
	f.stationBID = repo.AddStation(model.Station{Name: "Riverside"})
	f.technicianID = repo.AddTechnician(model.Technician{Name: "Petrov"})
	f.bicycleID = repo.AddBicycle(model.Bicycle{
		Model:     "Forward Apache",
		Type:      model.BicycleTypeCity,
		Status:    model.BicycleStatusAvailable,
		StationID: &f.stationAID,
	})
	return f
}

func TestRentStartAndComplete(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	f.coord.now = func() time.Time { return start }

	rental, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID)
	if err != nil {
		t.Fatalf("rent start: %v", err)
	}
	if rental.Status != model.RentalStatusActive {
		t.Fatalf("expected active rental, got %s", rental.Status)
	}

	bicycle, err := f.repo.GetBicycle(ctx, f.bicycleID)
	if err != nil {
		t.Fatalf("get bicycle: %v", err)
	}
	if !bicycle.IsRented() {
		t.Fatalf("expected rented bicycle, got %s", bicycle.Status)
	}
	// Станция сохраняется до возврата, даже пока велосипед в аренде.
	if bicycle.StationID == nil || *bicycle.StationID != f.stationAID {
		t.Fatalf("expected bicycle to keep station %d while rented, got %v", f.stationAID, bicycle.StationID)
	}

	f.coord.now = func() time.Time { return start.Add(10 * time.Minute) }

	completed, err := f.coord.RentComplete(ctx, rental.ID, f.stationBID)
	if err != nil {
		t.Fatalf("rent complete: %v", err)
	}
	if completed.Cost != 10*model.CostPerMinute {
		t.Fatalf("expected cost %d, got %d", 10*model.CostPerMinute, completed.Cost)
	}

	user, err := f.repo.GetUser(ctx, f.userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Balance != 940 || user.Debt != 0 {
		t.Fatalf("expected balance 940 debt 0, got %d/%d", user.Balance, user.Debt)
	}

	bicycle, _ = f.repo.GetBicycle(ctx, f.bicycleID)
	if !bicycle.IsAvailable() {
		t.Fatalf("expected available bicycle, got %s", bicycle.Status)
	}
	if bicycle.StationID == nil || *bicycle.StationID != f.stationBID {
		t.Fatalf("expected bicycle at station %d, got %v", f.stationBID, bicycle.StationID)
	}
	if bicycle.Mileage != 10 {
		t.Fatalf("expected mileage 10, got %d", bicycle.Mileage)
	}
}

func TestRentCompleteOverflowToDebt(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	f.coord.now = func() time.Time { return start }

	rental, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID)
	if err != nil {
		t.Fatalf("rent start: %v", err)
	}

	f.coord.now = func() time.Time { return start.Add(10 * time.Minute) }
	if _, err := f.coord.RentComplete(ctx, rental.ID, f.stationBID); err != nil {
		t.Fatalf("rent complete: %v", err)
	}

	user, _ := f.repo.GetUser(ctx, f.userID)
	if user.Balance != 0 || user.Debt != 10 {
		t.Fatalf("expected balance 0 debt 10, got %d/%d", user.Balance, user.Debt)
	}
	if user.CanRent() {
		t.Fatal("debtor must not be able to rent")
	}
}

func TestRentStartBusinessChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("bicycle under maintenance", func(t *testing.T) {
		f := newFixture(t, 1000)
		if _, err := f.coord.RepairStart(ctx, f.bicycleID, f.technicianID, "brake pads"); err != nil {
			t.Fatalf("repair start: %v", err)
		}
		_, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID)
		if !errors.Is(err, model.ErrBicycleUnavailable) {
			t.Fatalf("expected ErrBicycleUnavailable, got %v", err)
		}
	})

	t.Run("user with zero balance", func(t *testing.T) {
		f := newFixture(t, 0)
		_, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID)
		if !errors.Is(err, model.ErrUserIneligible) {
			t.Fatalf("expected ErrUserIneligible, got %v", err)
		}
	})

	t.Run("unknown station", func(t *testing.T) {
		f := newFixture(t, 1000)
		_, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, 9000)
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRentStartConcurrent(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	const riders = 20
	userIDs := make([]int64, riders)
	userIDs[0] = f.userID
	for i := 1; i < riders; i++ {
		userIDs[i] = f.repo.AddUser(model.User{Username: "rider", Balance: 1000})
	}

	var wg sync.WaitGroup
	errs := make([]error, riders)
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.RentStart(ctx, userIDs[i], f.bicycleID, f.stationAID)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, model.ErrBicycleUnavailable):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != riders-1 {
		t.Fatalf("expected exactly one winner, got %d winners and %d losers", won, lost)
	}
	if n := f.repo.ActiveRentalsByBicycle(f.bicycleID); n != 1 {
		t.Fatalf("expected one active rental, got %d", n)
	}
}

func TestRentCompleteIdempotent(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	f.coord.now = func() time.Time { return start }

	rental, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID)
	if err != nil {
		t.Fatalf("rent start: %v", err)
	}

	f.coord.now = func() time.Time { return start.Add(5 * time.Minute) }
	if _, err := f.coord.RentComplete(ctx, rental.ID, f.stationBID); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	if _, err := f.coord.RentComplete(ctx, rental.ID, f.stationBID); !errors.Is(err, model.ErrRentalNotActive) {
		t.Fatalf("expected ErrRentalNotActive, got %v", err)
	}

	user, _ := f.repo.GetUser(ctx, f.userID)
	if user.Balance != 1000-5*model.CostPerMinute {
		t.Fatalf("user charged more than once: balance %d", user.Balance)
	}
}

func TestRentCancel(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	f.coord.now = func() time.Time { return start }

	rental, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID)
	if err != nil {
		t.Fatalf("rent start: %v", err)
	}

	f.coord.now = func() time.Time { return start.Add(3 * time.Minute) }
	cancelled, err := f.coord.RentCancel(ctx, rental.ID)
	if err != nil {
		t.Fatalf("rent cancel: %v", err)
	}
	if cancelled.Status != model.RentalStatusCancelled {
		t.Fatalf("expected cancelled rental, got %s", cancelled.Status)
	}
	if cancelled.Cost != 0 {
		t.Fatalf("cancelled rental must be free, got cost %d", cancelled.Cost)
	}

	user, _ := f.repo.GetUser(ctx, f.userID)
	if user.Balance != 1000 {
		t.Fatalf("cancelled rental must not be charged, balance %d", user.Balance)
	}

	bicycle, _ := f.repo.GetBicycle(ctx, f.bicycleID)
	if bicycle.StationID == nil || *bicycle.StationID != f.stationAID {
		t.Fatalf("expected bicycle back at start station %d, got %v", f.stationAID, bicycle.StationID)
	}

	if _, err := f.coord.RentComplete(ctx, rental.ID, f.stationBID); !errors.Is(err, model.ErrRentalNotActive) {
		t.Fatalf("expected ErrRentalNotActive after cancel, got %v", err)
	}
}

func TestRepairLifecycle(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	f.coord.now = func() time.Time { return start }

	// Накатываем пробег выше порога обслуживания.
	rental, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID)
	if err != nil {
		t.Fatalf("rent start: %v", err)
	}
	f.coord.now = func() time.Time { return start.Add(60 * time.Minute) }
	if _, err := f.coord.RentComplete(ctx, rental.ID, f.stationBID); err != nil {
		t.Fatalf("rent complete: %v", err)
	}

	bicycle, _ := f.repo.GetBicycle(ctx, f.bicycleID)
	if !bicycle.NeedsService() {
		t.Fatalf("expected bicycle to need service at mileage %d", bicycle.Mileage)
	}

	repair, err := f.coord.RepairStart(ctx, f.bicycleID, f.technicianID, "scheduled service")
	if err != nil {
		t.Fatalf("repair start: %v", err)
	}

	bicycle, _ = f.repo.GetBicycle(ctx, f.bicycleID)
	if !bicycle.IsUnderMaintenance() {
		t.Fatalf("expected bicycle under maintenance, got %s", bicycle.Status)
	}

	serviced := start.Add(2 * time.Hour)
	f.coord.now = func() time.Time { return serviced }
	if _, err := f.coord.RepairComplete(ctx, repair.ID); err != nil {
		t.Fatalf("repair complete: %v", err)
	}

	bicycle, _ = f.repo.GetBicycle(ctx, f.bicycleID)
	if !bicycle.IsAvailable() {
		t.Fatalf("expected available bicycle, got %s", bicycle.Status)
	}
	if bicycle.Mileage != 0 {
		t.Fatalf("expected mileage reset, got %d", bicycle.Mileage)
	}
	if !bicycle.LastServiceAt.Equal(serviced) {
		t.Fatalf("expected last service at %v, got %v", serviced, bicycle.LastServiceAt)
	}

	if _, err := f.coord.RepairComplete(ctx, repair.ID); !errors.Is(err, model.ErrRepairNotActive) {
		t.Fatalf("expected ErrRepairNotActive, got %v", err)
	}
}

func TestRepairStartRentedBicycle(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	if _, err := f.coord.RentStart(ctx, f.userID, f.bicycleID, f.stationAID); err != nil {
		t.Fatalf("rent start: %v", err)
	}

	_, err := f.coord.RepairStart(ctx, f.bicycleID, f.technicianID, "flat tire")
	if !errors.Is(err, model.ErrBicycleUnavailable) {
		t.Fatalf("expected ErrBicycleUnavailable, got %v", err)
	}
}

func TestRentStartLockTimeout(t *testing.T) {
	repo := repository.NewMemoryRepository()
	locks := lock.NewManager(50 * time.Millisecond)
	coord := NewCoordinator(repo, locks, zap.NewNop())

	userID := repo.AddUser(model.User{Username: "rider", Balance: 1000})
	stationID := repo.AddStation(model.Station{Name: "Central"})
	bicycleID := repo.AddBicycle(model.Bicycle{
		Model:     "Forward Apache",
		Type:      model.BicycleTypeCity,
		Status:    model.BicycleStatusAvailable,
		StationID: &stationID,
	})

	release, err := locks.Acquire(context.Background(), lock.Key{Kind: lock.KindBicycle, ID: bicycleID})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = coord.RentStart(context.Background(), userID, bicycleID, stationID)
	if !errors.Is(err, lock.ErrReservationTimeout) {
		t.Fatalf("expected ErrReservationTimeout, got %v", err)
	}
}
