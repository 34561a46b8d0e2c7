// Package lock реализует эксклюзивные блокировки сущностей внутри процесса.
// Координатор резервирования берёт блокировки всех затрагиваемых сущностей
// в фиксированном глобальном порядке до начала транзакции, что исключает
// взаимные блокировки двух операций над одной парой сущностей.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrReservationTimeout возвращается, если блокировку не удалось получить
// за отведённое время. Ошибка ретраибельна: вызывающая сторона может
// повторить операцию позже.
var ErrReservationTimeout = errors.New("reservation lock timeout")

// Kind определяет тип сущности. Порядок констант задаёт глобальный
// порядок взятия блокировок: велосипед, затем аренда, затем ремонт,
// затем пользователь.
type Kind int

const (
	KindBicycle Kind = iota
	KindRental
	KindRepair
	KindUser
)

// Key идентифицирует блокируемую сущность.
type Key struct {
	Kind Kind
	ID   int64
}

// Manager выдаёт эксклюзивные блокировки по ключам сущностей.
// Несвязанные сущности блокируются независимо и не мешают друг другу.
type Manager struct {
	mu      sync.Mutex
	held    map[Key]chan struct{}
	timeout time.Duration
}

// NewManager создаёт менеджер блокировок с ограничением времени ожидания
// на одну операцию Acquire.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		held:    make(map[Key]chan struct{}),
		timeout: timeout,
	}
}

// Acquire берёт блокировки всех ключей в фиксированном глобальном порядке
// и возвращает функцию освобождения. Общее время ожидания ограничено;
// по истечении возвращается ErrReservationTimeout, уже взятые ключи
// освобождаются.
func (m *Manager) Acquire(ctx context.Context, keys ...Key) (func(), error) {
	ordered := orderKeys(keys)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	acquired := make([]Key, 0, len(ordered))
	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, k := range acquired {
			ch := m.held[k]
			delete(m.held, k)
			close(ch)
		}
	}

	for _, k := range ordered {
		if err := m.acquireOne(ctx, k, timer); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, k)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (m *Manager) acquireOne(ctx context.Context, k Key, timer *time.Timer) error {
	for {
		m.mu.Lock()
		ch, busy := m.held[k]
		if !busy {
			m.held[k] = make(chan struct{})
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		// Ключ занят: ждём освобождения, отмены контекста или таймаута.
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrReservationTimeout
		}
	}
}

// orderKeys убирает дубликаты и сортирует ключи по (Kind, ID).
func orderKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	ordered := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, k)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Kind != ordered[j].Kind {
			return ordered[i].Kind < ordered[j].Kind
		}
		return ordered[i].ID < ordered[j].ID
	})

	return ordered
}
