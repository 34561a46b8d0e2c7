// Package reservation реализует координатор резервирования — единственную
// точку изменения состояния велосипедов, аренд и ремонтов. Каждая операция
// берёт блокировки затрагиваемых сущностей в фиксированном порядке,
// перечитывает их состояние уже под блокировкой и фиксирует все изменения
// одной транзакцией.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/bikerent-system/internal/ledger"
	"github.com/mmeshcher/bikerent-system/internal/lock"
	"github.com/mmeshcher/bikerent-system/internal/model"
	"github.com/mmeshcher/bikerent-system/internal/repository"
)

// Store описывает контракт хранилища, используемый координатором.
type Store interface {
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
	// GetRental и GetRepair читают без блокировки и служат только для
	// определения набора блокируемых сущностей; решения принимаются
	// по повторному чтению внутри транзакции.
	GetRental(ctx context.Context, id int64) (*model.Rental, error)
	GetRepair(ctx context.Context, id int64) (*model.Repair, error)
}

// Coordinator выполняет пять операций резервирования над общим парком
// велосипедов. Бизнес-ошибки (занятый велосипед, неактивная аренда)
// никогда не повторяются автоматически; конфликт версий повторяется
// один раз, таймаут блокировки отдаётся вызывающей стороне как есть.
type Coordinator struct {
	store  Store
	locks  *lock.Manager
	logger *zap.Logger
	now    func() time.Time
}

// NewCoordinator создаёт координатор резервирования.
func NewCoordinator(store Store, locks *lock.Manager, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}
}

// withConflictRetry повторяет операцию один раз при конфликте версий.
func (c *Coordinator) withConflictRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, repository.ErrConcurrentModification) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// checkTransition логирует недопустимый переход как дефект координатора:
// под блокировкой перепроверенное состояние не должно его допускать.
func (c *Coordinator) checkTransition(op string, err error) error {
	if err != nil && errors.Is(err, model.ErrInvalidTransition) {
		c.logger.Error("coordinator defect: invalid transition after locked re-read",
			zap.String("operation", op), zap.Error(err))
	}
	return err
}

// RentStart открывает аренду велосипеда пользователем со станции stationID.
func (c *Coordinator) RentStart(ctx context.Context, userID, bicycleID, stationID int64) (*model.Rental, error) {
	var rental *model.Rental

	err := c.withConflictRetry(ctx, func(ctx context.Context) error {
		release, err := c.locks.Acquire(ctx,
			lock.Key{Kind: lock.KindBicycle, ID: bicycleID},
			lock.Key{Kind: lock.KindUser, ID: userID},
		)
		if err != nil {
			return err
		}
		defer release()

		return c.store.InTx(ctx, func(tx repository.Tx) error {
			bicycle, err := tx.GetBicycleForUpdate(ctx, bicycleID)
			if err != nil {
				return fmt.Errorf("fetch bicycle: %w", err)
			}
			user, err := tx.GetUserForUpdate(ctx, userID)
			if err != nil {
				return fmt.Errorf("fetch user: %w", err)
			}
			station, err := tx.GetStation(ctx, stationID)
			if err != nil {
				return fmt.Errorf("fetch station: %w", err)
			}

			// Повторная проверка под блокировкой: проигравший гонку
			// получает бизнес-ошибку, а не ошибку инфраструктуры.
			if !bicycle.IsAvailable() {
				return model.ErrBicycleUnavailable
			}
			if !user.CanRent() {
				return model.ErrUserIneligible
			}

			if err := c.checkTransition("rent start", bicycle.StartRental()); err != nil {
				return err
			}

			rental = model.NewRental(user.ID, bicycle.ID, station.ID, c.now())

			if err := tx.UpdateBicycle(ctx, bicycle); err != nil {
				return err
			}
			return tx.CreateRental(ctx, rental)
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("rental started",
		zap.Int64("rental_id", rental.ID),
		zap.Int64("user_id", userID),
		zap.Int64("bicycle_id", bicycleID))
	return rental, nil
}

// RentComplete завершает активную аренду на станции endStationID:
// начисляет пробег, вычисляет стоимость и списывает её с баланса
// пользователя в той же транзакции.
func (c *Coordinator) RentComplete(ctx context.Context, rentalID, endStationID int64) (*model.Rental, error) {
	// Чтение без блокировки, только чтобы узнать набор блокируемых сущностей.
	pre, err := c.store.GetRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	var rental *model.Rental

	err = c.withConflictRetry(ctx, func(ctx context.Context) error {
		release, err := c.locks.Acquire(ctx,
			lock.Key{Kind: lock.KindBicycle, ID: pre.BicycleID},
			lock.Key{Kind: lock.KindRental, ID: pre.ID},
			lock.Key{Kind: lock.KindUser, ID: pre.UserID},
		)
		if err != nil {
			return err
		}
		defer release()

		return c.store.InTx(ctx, func(tx repository.Tx) error {
			r, err := tx.GetRentalForUpdate(ctx, rentalID)
			if err != nil {
				return fmt.Errorf("fetch rental: %w", err)
			}
			if !r.IsActive() {
				return model.ErrRentalNotActive
			}

			bicycle, err := tx.GetBicycleForUpdate(ctx, r.BicycleID)
			if err != nil {
				return fmt.Errorf("fetch bicycle: %w", err)
			}
			user, err := tx.GetUserForUpdate(ctx, r.UserID)
			if err != nil {
				return fmt.Errorf("fetch user: %w", err)
			}
			station, err := tx.GetStation(ctx, endStationID)
			if err != nil {
				return fmt.Errorf("fetch station: %w", err)
			}

			now := c.now()

			// Пробег записывается до перехода состояния, чтобы попасть
			// на одометр до возможного обслуживания.
			if err := bicycle.AddMileage(r.DurationMinutes(now)); err != nil {
				return err
			}
			if err := c.checkTransition("rent complete", bicycle.EndRental(station.ID)); err != nil {
				return err
			}
			if err := r.Complete(station.ID, now); err != nil {
				return err
			}
			if err := ledger.DebitForUsage(user, r.Cost); err != nil {
				return err
			}

			if err := tx.UpdateBicycle(ctx, bicycle); err != nil {
				return err
			}
			if err := tx.UpdateUser(ctx, user); err != nil {
				return err
			}
			if err := tx.UpdateRental(ctx, r); err != nil {
				return err
			}

			rental = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("rental completed",
		zap.Int64("rental_id", rental.ID),
		zap.Int64("cost", rental.Cost))
	return rental, nil
}

// RentCancel отменяет активную аренду: стоимость нулевая, велосипед
// возвращается на стартовую станцию.
func (c *Coordinator) RentCancel(ctx context.Context, rentalID int64) (*model.Rental, error) {
	pre, err := c.store.GetRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	var rental *model.Rental

	err = c.withConflictRetry(ctx, func(ctx context.Context) error {
		release, err := c.locks.Acquire(ctx,
			lock.Key{Kind: lock.KindBicycle, ID: pre.BicycleID},
			lock.Key{Kind: lock.KindRental, ID: pre.ID},
		)
		if err != nil {
			return err
		}
		defer release()

		return c.store.InTx(ctx, func(tx repository.Tx) error {
			r, err := tx.GetRentalForUpdate(ctx, rentalID)
			if err != nil {
				return fmt.Errorf("fetch rental: %w", err)
			}
			if !r.IsActive() {
				return model.ErrRentalNotActive
			}

			bicycle, err := tx.GetBicycleForUpdate(ctx, r.BicycleID)
			if err != nil {
				return fmt.Errorf("fetch bicycle: %w", err)
			}

			if err := r.Cancel(c.now()); err != nil {
				return err
			}
			if err := c.checkTransition("rent cancel", bicycle.EndRental(r.StartStationID)); err != nil {
				return err
			}

			if err := tx.UpdateBicycle(ctx, bicycle); err != nil {
				return err
			}
			if err := tx.UpdateRental(ctx, r); err != nil {
				return err
			}

			rental = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("rental cancelled", zap.Int64("rental_id", rental.ID))
	return rental, nil
}

// RepairStart открывает ремонт велосипеда указанным механиком.
func (c *Coordinator) RepairStart(ctx context.Context, bicycleID, technicianID int64, description string) (*model.Repair, error) {
	var repair *model.Repair

	err := c.withConflictRetry(ctx, func(ctx context.Context) error {
		release, err := c.locks.Acquire(ctx,
			lock.Key{Kind: lock.KindBicycle, ID: bicycleID},
		)
		if err != nil {
			return err
		}
		defer release()

		return c.store.InTx(ctx, func(tx repository.Tx) error {
			bicycle, err := tx.GetBicycleForUpdate(ctx, bicycleID)
			if err != nil {
				return fmt.Errorf("fetch bicycle: %w", err)
			}
			technician, err := tx.GetTechnician(ctx, technicianID)
			if err != nil {
				return fmt.Errorf("fetch technician: %w", err)
			}

			if !bicycle.IsAvailable() {
				return model.ErrBicycleUnavailable
			}
			if err := c.checkTransition("repair start", bicycle.StartMaintenance()); err != nil {
				return err
			}

			repair = model.NewRepair(bicycle.ID, technician.ID, description, c.now())

			if err := tx.UpdateBicycle(ctx, bicycle); err != nil {
				return err
			}
			return tx.CreateRepair(ctx, repair)
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("repair started",
		zap.Int64("repair_id", repair.ID),
		zap.Int64("bicycle_id", bicycleID))
	return repair, nil
}

// RepairComplete завершает ремонт: велосипед снова доступен,
// пробег обнулён, дата обслуживания обновлена.
func (c *Coordinator) RepairComplete(ctx context.Context, repairID int64) (*model.Repair, error) {
	pre, err := c.store.GetRepair(ctx, repairID)
	if err != nil {
		return nil, err
	}

	var repair *model.Repair

	err = c.withConflictRetry(ctx, func(ctx context.Context) error {
		release, err := c.locks.Acquire(ctx,
			lock.Key{Kind: lock.KindBicycle, ID: pre.BicycleID},
			lock.Key{Kind: lock.KindRepair, ID: pre.ID},
		)
		if err != nil {
			return err
		}
		defer release()

		return c.store.InTx(ctx, func(tx repository.Tx) error {
			rep, err := tx.GetRepairForUpdate(ctx, repairID)
			if err != nil {
				return fmt.Errorf("fetch repair: %w", err)
			}
			if !rep.IsInProgress() {
				return model.ErrRepairNotActive
			}

			bicycle, err := tx.GetBicycleForUpdate(ctx, rep.BicycleID)
			if err != nil {
				return fmt.Errorf("fetch bicycle: %w", err)
			}

			now := c.now()
			if err := rep.Complete(now); err != nil {
				return err
			}
			if err := c.checkTransition("repair complete", bicycle.CompleteMaintenance(now)); err != nil {
				return err
			}

			if err := tx.UpdateBicycle(ctx, bicycle); err != nil {
				return err
			}
			if err := tx.UpdateRepair(ctx, rep); err != nil {
				return err
			}

			repair = rep
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("repair completed", zap.Int64("repair_id", repair.ID))
	return repair, nil
}
