package model

import (
	"fmt"
	"time"
)

// BicycleStatus описывает состояние велосипеда.
type BicycleStatus string

const (
	BicycleStatusAvailable BicycleStatus = "AVAILABLE"
	BicycleStatusRented    BicycleStatus = "RENTED"
	// BicycleStatusUnavailable означает, что велосипед находится в ремонте.
	BicycleStatusUnavailable BicycleStatus = "UNAVAILABLE"
)

// BicycleType описывает тип велосипеда.
type BicycleType string

const (
	BicycleTypeRoad     BicycleType = "ROAD"
	BicycleTypeMountain BicycleType = "MOUNTAIN"
	BicycleTypeCity     BicycleType = "CITY"
	BicycleTypeElectric BicycleType = "ELECTRIC"
)

// ServiceThresholdMileage — пробег в минутах использования, после которого
// велосипеду требуется обслуживание.
const ServiceThresholdMileage int64 = 50

// Bicycle представляет велосипед — единичный разделяемый ресурс проката.
// Поле Status является единственным источником истины о занятости:
// RENTED подразумевает ровно одну активную аренду, UNAVAILABLE — ровно
// один незавершённый ремонт.
type Bicycle struct {
	ID            int64
	Version       int64
	Model         string
	Type          BicycleType
	Status        BicycleStatus
	StationID     *int64
	Mileage       int64
	LastServiceAt time.Time
}

// IsAvailable сообщает, свободен ли велосипед.
func (b *Bicycle) IsAvailable() bool {
	return b.Status == BicycleStatusAvailable
}

// IsRented сообщает, находится ли велосипед в аренде.
func (b *Bicycle) IsRented() bool {
	return b.Status == BicycleStatusRented
}

// IsUnderMaintenance сообщает, находится ли велосипед в ремонте.
func (b *Bicycle) IsUnderMaintenance() bool {
	return b.Status == BicycleStatusUnavailable
}

// NeedsService сообщает, превышен ли порог пробега до обслуживания.
func (b *Bicycle) NeedsService() bool {
	return b.Mileage > ServiceThresholdMileage
}

// StartRental переводит велосипед в состояние RENTED.
func (b *Bicycle) StartRental() error {
	if !b.IsAvailable() {
		return invalidTransition("start rental", b.Status)
	}
	b.Status = BicycleStatusRented
	return nil
}

// EndRental возвращает велосипед из аренды на станцию stationID.
func (b *Bicycle) EndRental(stationID int64) error {
	if !b.IsRented() {
		return invalidTransition("end rental", b.Status)
	}
	b.Status = BicycleStatusAvailable
	b.StationID = &stationID
	return nil
}

// StartMaintenance переводит велосипед в ремонт.
func (b *Bicycle) StartMaintenance() error {
	if !b.IsAvailable() {
		return invalidTransition("start maintenance", b.Status)
	}
	b.Status = BicycleStatusUnavailable
	return nil
}

// CompleteMaintenance завершает ремонт: велосипед снова доступен,
// пробег обнуляется, фиксируется дата обслуживания.
func (b *Bicycle) CompleteMaintenance(now time.Time) error {
	if !b.IsUnderMaintenance() {
		return invalidTransition("complete maintenance", b.Status)
	}
	b.Status = BicycleStatusAvailable
	b.Mileage = 0
	b.LastServiceAt = now
	return nil
}

// AddMileage добавляет minutes минут использования к пробегу.
// Вызывается до перехода состояния, чтобы пробег записывался
// на одометр до обслуживания.
func (b *Bicycle) AddMileage(minutes int64) error {
	if minutes < 0 {
		return ErrNegativeMileage
	}
	b.Mileage += minutes
	return nil
}

func invalidTransition(op string, current BicycleStatus) error {
	return fmt.Errorf("%w: cannot %s while bicycle is %s", ErrInvalidTransition, op, current)
}
