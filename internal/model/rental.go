package model

import "time"

// RentalStatus описывает статус аренды.
type RentalStatus string

const (
	RentalStatusActive    RentalStatus = "ACTIVE"
	RentalStatusEnded     RentalStatus = "ENDED"
	RentalStatusCancelled RentalStatus = "CANCELLED"
)

// CostPerMinute — стоимость одной полной минуты аренды.
const CostPerMinute int64 = 6

// Rental представляет аренду велосипеда пользователем.
// Аренда ровно один раз переходит из ACTIVE в терминальное состояние
// (ENDED или CANCELLED); стоимость вычисляется один раз при завершении
// и после этого не меняется.
type Rental struct {
	ID             int64
	Version        int64
	UserID         int64
	BicycleID      int64
	StartStationID int64
	EndStationID   *int64
	Status         RentalStatus
	StartedAt      time.Time
	EndedAt        *time.Time
	Cost           int64
}

// NewRental создаёт активную аренду с нулевой стоимостью.
func NewRental(userID, bicycleID, startStationID int64, now time.Time) *Rental {
	return &Rental{
		UserID:         userID,
		BicycleID:      bicycleID,
		StartStationID: startStationID,
		Status:         RentalStatusActive,
		StartedAt:      now,
		Cost:           0,
	}
}

// IsActive сообщает, активна ли аренда.
func (r *Rental) IsActive() bool {
	return r.Status == RentalStatusActive
}

// DurationMinutes возвращает длительность аренды в полных минутах
// относительно момента now. Неполные минуты отбрасываются, результат
// не бывает отрицательным.
func (r *Rental) DurationMinutes(now time.Time) int64 {
	end := now
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	minutes := int64(end.Sub(r.StartedAt) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

// Complete завершает активную аренду на станции endStationID.
// Стоимость равна числу полных минут, умноженному на CostPerMinute.
func (r *Rental) Complete(endStationID int64, now time.Time) error {
	if !r.IsActive() {
		return ErrRentalNotActive
	}
	r.EndStationID = &endStationID
	r.EndedAt = &now
	r.Status = RentalStatusEnded
	r.Cost = r.DurationMinutes(now) * CostPerMinute
	return nil
}

// Cancel отменяет активную аренду: стоимость нулевая, велосипед
// считается возвращённым на стартовую станцию.
func (r *Rental) Cancel(now time.Time) error {
	if !r.IsActive() {
		return ErrRentalNotActive
	}
	r.EndStationID = &r.StartStationID
	r.EndedAt = &now
	r.Status = RentalStatusCancelled
	r.Cost = 0
	return nil
}
