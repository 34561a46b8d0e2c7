package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mmeshcher/bikerent-system/internal/model"
)

// MemoryRepository — хранилище в памяти с той же транзакционной семантикой,
// что и у PostgresRepository: изменения применяются атомарно при успешном
// завершении InTx, записи проверяют версию сущности. Используется в
// модульных тестах координатора, где важно воспроизводить гонки без БД.
type MemoryRepository struct {
	mu sync.Mutex

	users       map[int64]model.User
	stations    map[int64]model.Station
	technicians map[int64]model.Technician
	bicycles    map[int64]model.Bicycle
	rentals     map[int64]model.Rental
	repairs     map[int64]model.Repair
	payments    map[int64]model.Payment

	nextID int64
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:       make(map[int64]model.User),
		stations:    make(map[int64]model.Station),
		technicians: make(map[int64]model.Technician),
		bicycles:    make(map[int64]model.Bicycle),
		rentals:     make(map[int64]model.Rental),
		repairs:     make(map[int64]model.Repair),
		payments:    make(map[int64]model.Payment),
	}
}

// Close ничего не делает и существует для совместимости с PostgresRepository.
func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) nextIdentity() int64 {
	m.nextID++
	return m.nextID
}

// AddUser кладёт пользователя в хранилище и возвращает назначенный идентификатор.
func (m *MemoryRepository) AddUser(u model.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextIdentity()
	m.users[u.ID] = u
	return u.ID
}

// AddStation кладёт станцию в хранилище.
func (m *MemoryRepository) AddStation(s model.Station) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextIdentity()
	m.stations[s.ID] = s
	return s.ID
}

// AddTechnician кладёт механика в хранилище.
func (m *MemoryRepository) AddTechnician(t model.Technician) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextIdentity()
	m.technicians[t.ID] = t
	return t.ID
}

// AddBicycle кладёт велосипед в хранилище.
func (m *MemoryRepository) AddBicycle(b model.Bicycle) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextIdentity()
	m.bicycles[b.ID] = b
	return b.ID
}

// GetBicycle возвращает копию велосипеда.
func (m *MemoryRepository) GetBicycle(_ context.Context, id int64) (*model.Bicycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bicycles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

// GetUser возвращает копию пользователя.
func (m *MemoryRepository) GetUser(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetRental возвращает копию аренды.
func (m *MemoryRepository) GetRental(_ context.Context, id int64) (*model.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rentals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// GetRepair возвращает копию ремонта.
func (m *MemoryRepository) GetRepair(_ context.Context, id int64) (*model.Repair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.repairs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// ActiveRentalsByBicycle возвращает число активных аренд велосипеда.
func (m *MemoryRepository) ActiveRentalsByBicycle(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rentals {
		if r.BicycleID == id && r.Status == model.RentalStatusActive {
			n++
		}
	}
	return n
}

// ListPaymentsByUser возвращает пополнения пользователя.
func (m *MemoryRepository) ListPaymentsByUser(_ context.Context, userID int64) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	return res, nil
}

// InTx выполняет fn под общим мьютексом хранилища. Изменения накапливаются
// и применяются только при успешном завершении fn, как при коммите в БД.
func (m *MemoryRepository) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &memTx{repo: m}
	if err := fn(t); err != nil {
		return err
	}

	for _, apply := range t.staged {
		apply()
	}
	return nil
}

type memTx struct {
	repo   *MemoryRepository
	staged []func()
}

func (t *memTx) GetBicycleForUpdate(_ context.Context, id int64) (*model.Bicycle, error) {
	b, ok := t.repo.bicycles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (t *memTx) GetUserForUpdate(_ context.Context, id int64) (*model.User, error) {
	u, ok := t.repo.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) GetRentalForUpdate(_ context.Context, id int64) (*model.Rental, error) {
	r, ok := t.repo.rentals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) GetRepairForUpdate(_ context.Context, id int64) (*model.Repair, error) {
	r, ok := t.repo.repairs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) GetStation(_ context.Context, id int64) (*model.Station, error) {
	s, ok := t.repo.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (t *memTx) GetTechnician(_ context.Context, id int64) (*model.Technician, error) {
	tech, ok := t.repo.technicians[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tech, nil
}

func (t *memTx) UpdateBicycle(_ context.Context, b *model.Bicycle) error {
	current, ok := t.repo.bicycles[b.ID]
	if !ok || current.Version != b.Version {
		return fmt.Errorf("%w: bicycle %d", ErrConcurrentModification, b.ID)
	}
	b.Version++
	saved := *b
	t.staged = append(t.staged, func() { t.repo.bicycles[saved.ID] = saved })
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u *model.User) error {
	current, ok := t.repo.users[u.ID]
	if !ok || current.Version != u.Version {
		return fmt.Errorf("%w: user %d", ErrConcurrentModification, u.ID)
	}
	u.Version++
	saved := *u
	t.staged = append(t.staged, func() { t.repo.users[saved.ID] = saved })
	return nil
}

func (t *memTx) UpdateRental(_ context.Context, r *model.Rental) error {
	current, ok := t.repo.rentals[r.ID]
	if !ok || current.Version != r.Version {
		return fmt.Errorf("%w: rental %d", ErrConcurrentModification, r.ID)
	}
	r.Version++
	saved := *r
	t.staged = append(t.staged, func() { t.repo.rentals[saved.ID] = saved })
	return nil
}

func (t *memTx) UpdateRepair(_ context.Context, r *model.Repair) error {
	current, ok := t.repo.repairs[r.ID]
	if !ok || current.Version != r.Version {
		return fmt.Errorf("%w: repair %d", ErrConcurrentModification, r.ID)
	}
	r.Version++
	saved := *r
	t.staged = append(t.staged, func() { t.repo.repairs[saved.ID] = saved })
	return nil
}

func (t *memTx) CreateRental(_ context.Context, r *model.Rental) error {
	r.ID = t.repo.nextIdentity()
	saved := *r
	t.staged = append(t.staged, func() { t.repo.rentals[saved.ID] = saved })
	return nil
}

func (t *memTx) CreateRepair(_ context.Context, r *model.Repair) error {
	r.ID = t.repo.nextIdentity()
	saved := *r
	t.staged = append(t.staged, func() { t.repo.repairs[saved.ID] = saved })
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, p *model.Payment) error {
	p.ID = t.repo.nextIdentity()
	saved := *p
	t.staged = append(t.staged, func() { t.repo.payments[saved.ID] = saved })
	return nil
}

// CreateStation сохраняет новую станцию.
func (m *MemoryRepository) CreateStation(_ context.Context, s *model.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextIdentity()
	m.stations[s.ID] = *s
	return nil
}

// GetStation возвращает копию станции.
func (m *MemoryRepository) GetStation(_ context.Context, id int64) (*model.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// ListStations возвращает все станции в порядке идентификаторов.
func (m *MemoryRepository) ListStations(_ context.Context) ([]model.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Station, 0, len(m.stations))
	for _, s := range m.stations {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// UpdateStation перезаписывает станцию.
func (m *MemoryRepository) UpdateStation(_ context.Context, s *model.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[s.ID]; !ok {
		return ErrNotFound
	}
	m.stations[s.ID] = *s
	return nil
}

// DeleteStation удаляет станцию, если на ней нет велосипедов.
func (m *MemoryRepository) DeleteStation(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[id]; !ok {
		return ErrNotFound
	}
	for _, b := range m.bicycles {
		if b.StationID != nil && *b.StationID == id {
			return ErrStationInUse
		}
	}
	delete(m.stations, id)
	return nil
}

// CreateTechnician сохраняет нового механика.
func (m *MemoryRepository) CreateTechnician(_ context.Context, t *model.Technician) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextIdentity()
	m.technicians[t.ID] = *t
	return nil
}

// GetTechnician возвращает копию механика.
func (m *MemoryRepository) GetTechnician(_ context.Context, id int64) (*model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.technicians[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// ListTechnicians возвращает всех механиков в порядке идентификаторов.
func (m *MemoryRepository) ListTechnicians(_ context.Context) ([]model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Technician, 0, len(m.technicians))
	for _, t := range m.technicians {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// DeleteTechnician удаляет механика.
func (m *MemoryRepository) DeleteTechnician(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.technicians[id]; !ok {
		return ErrNotFound
	}
	delete(m.technicians, id)
	return nil
}

// CreateBicycle сохраняет новый велосипед.
func (m *MemoryRepository) CreateBicycle(_ context.Context, b *model.Bicycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextIdentity()
	m.bicycles[b.ID] = *b
	return nil
}

// ListBicycles возвращает велосипеды, при непустом фильтре — с подстрокой
// в названии модели без учёта регистра.
func (m *MemoryRepository) ListBicycles(_ context.Context, modelFilter string) ([]model.Bicycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filter := strings.ToLower(modelFilter)
	res := make([]model.Bicycle, 0, len(m.bicycles))
	for _, b := range m.bicycles {
		if filter != "" && !strings.Contains(strings.ToLower(b.Model), filter) {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// ListBicyclesNeedingService возвращает велосипеды с пробегом выше порога.
func (m *MemoryRepository) ListBicyclesNeedingService(_ context.Context) ([]model.Bicycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Bicycle
	for _, b := range m.bicycles {
		if b.NeedsService() {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// DeleteBicycle удаляет велосипед, если он не находится в аренде.
func (m *MemoryRepository) DeleteBicycle(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bicycles[id]
	if !ok {
		return ErrNotFound
	}
	if b.IsRented() {
		return model.ErrBicycleRented
	}
	delete(m.bicycles, id)
	return nil
}

// ListRentalsByUser возвращает аренды пользователя.
func (m *MemoryRepository) ListRentalsByUser(_ context.Context, userID int64) ([]model.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Rental
	for _, r := range m.rentals {
		if r.UserID == userID {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// ListRentals возвращает все аренды.
func (m *MemoryRepository) ListRentals(_ context.Context) ([]model.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Rental, 0, len(m.rentals))
	for _, r := range m.rentals {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// ListRepairs возвращает все ремонты.
func (m *MemoryRepository) ListRepairs(_ context.Context) ([]model.Repair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Repair, 0, len(m.repairs))
	for _, r := range m.repairs {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
