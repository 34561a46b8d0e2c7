package model

import "errors"

// ErrInvalidTransition возвращается при попытке недопустимого перехода
// состояния велосипеда. Появление этой ошибки означает дефект координатора
// (вызов перехода без блокировки), а не ошибку бизнес-логики.
var ErrInvalidTransition = errors.New("invalid state transition")

var (
	// ErrBicycleUnavailable возвращается, если велосипед недоступен для аренды или ремонта.
	ErrBicycleUnavailable = errors.New("bicycle is not available")
	// ErrBicycleRented возвращается при попытке удалить велосипед, находящийся в аренде.
	ErrBicycleRented = errors.New("bicycle is currently rented")
	// ErrUserIneligible возвращается, если пользователь с нулевым балансом или долгом пытается открыть аренду.
	ErrUserIneligible = errors.New("user cannot rent: zero balance or outstanding debt")
	// ErrRentalNotActive возвращается при попытке завершить или отменить неактивную аренду.
	ErrRentalNotActive = errors.New("rental is not active")
	// ErrRepairNotActive возвращается при попытке завершить неактивный ремонт.
	ErrRepairNotActive = errors.New("repair is not in progress")
	// ErrInvalidAmount возвращается при некорректной сумме операции с балансом.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrNegativeMileage возвращается при попытке добавить отрицательный пробег.
	ErrNegativeMileage = errors.New("mileage cannot be negative")
)
