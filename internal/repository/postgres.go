// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/bikerent-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound возвращается, если сущность с указанным идентификатором не существует.
var (
	ErrNotFound = errors.New("entity not found")
	// ErrConcurrentModification возвращается при несовпадении версии сущности
	// в момент записи. Координатор повторяет такую операцию один раз.
	ErrConcurrentModification = errors.New("concurrent modification detected")
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим именем.
	ErrUserExists = errors.New("user already exists")
	// ErrStationInUse возвращается при попытке удалить станцию, на которой стоят велосипеды.
	ErrStationInUse = errors.New("station still has bicycles")
)

// Tx предоставляет операции над сущностями внутри одной транзакции.
// Методы *ForUpdate читают строку под эксклюзивной блокировкой на уровне
// хранилища; Update* проверяют версию и увеличивают её на единицу.
type Tx interface {
	GetBicycleForUpdate(ctx context.Context, id int64) (*model.Bicycle, error)
	GetUserForUpdate(ctx context.Context, id int64) (*model.User, error)
	GetRentalForUpdate(ctx context.Context, id int64) (*model.Rental, error)
	GetRepairForUpdate(ctx context.Context, id int64) (*model.Repair, error)

	GetStation(ctx context.Context, id int64) (*model.Station, error)
	GetTechnician(ctx context.Context, id int64) (*model.Technician, error)

	UpdateBicycle(ctx context.Context, b *model.Bicycle) error
	UpdateUser(ctx context.Context, u *model.User) error
	UpdateRental(ctx context.Context, r *model.Rental) error
	UpdateRepair(ctx context.Context, r *model.Repair) error

	CreateRental(ctx context.Context, r *model.Rental) error
	CreateRepair(ctx context.Context, r *model.Repair) error
	CreatePayment(ctx context.Context, p *model.Payment) error
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InTx выполняет fn внутри одной транзакции: при ошибке ничего не сохраняется.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const bicycleColumns = `id, version, model, type, status, station_id, mileage, last_service_at`

func scanBicycle(row pgx.Row) (*model.Bicycle, error) {
	var b model.Bicycle
	err := row.Scan(&b.ID, &b.Version, &b.Model, &b.Type, &b.Status, &b.StationID, &b.Mileage, &b.LastServiceAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan bicycle: %w", err)
	}
	return &b, nil
}

func (t *pgTx) GetBicycleForUpdate(ctx context.Context, id int64) (*model.Bicycle, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+bicycleColumns+` FROM bicycle WHERE id = $1 FOR UPDATE`, id)
	return scanBicycle(row)
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id int64) (*model.User, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, version, username, email, password_hash, role, balance, debt, registered_at
		 FROM users WHERE id = $1 FOR UPDATE`, id)

	var u model.User
	err := row.Scan(&u.ID, &u.Version, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Balance, &u.Debt, &u.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

const rentalColumns = `id, version, user_id, bicycle_id, start_station_id, end_station_id, status, started_at, ended_at, cost`

func scanRental(row pgx.Row) (*model.Rental, error) {
	var r model.Rental
	err := row.Scan(&r.ID, &r.Version, &r.UserID, &r.BicycleID, &r.StartStationID, &r.EndStationID, &r.Status, &r.StartedAt, &r.EndedAt, &r.Cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan rental: %w", err)
	}
	return &r, nil
}

func (t *pgTx) GetRentalForUpdate(ctx context.Context, id int64) (*model.Rental, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+rentalColumns+` FROM rental WHERE id = $1 FOR UPDATE`, id)
	return scanRental(row)
}

const repairColumns = `id, version, bicycle_id, technician_id, description, status, started_at, ended_at`

func scanRepair(row pgx.Row) (*model.Repair, error) {
	var r model.Repair
	err := row.Scan(&r.ID, &r.Version, &r.BicycleID, &r.TechnicianID, &r.Description, &r.Status, &r.StartedAt, &r.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan repair: %w", err)
	}
	return &r, nil
}

func (t *pgTx) GetRepairForUpdate(ctx context.Context, id int64) (*model.Repair, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+repairColumns+` FROM repair WHERE id = $1 FOR UPDATE`, id)
	return scanRepair(row)
}

func (t *pgTx) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, version, name, latitude, longitude FROM station WHERE id = $1`, id)

	var s model.Station
	err := row.Scan(&s.ID, &s.Version, &s.Name, &s.Latitude, &s.Longitude)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan station: %w", err)
	}
	return &s, nil
}

func (t *pgTx) GetTechnician(ctx context.Context, id int64) (*model.Technician, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, name, phone, specialization FROM technician WHERE id = $1`, id)

	var tech model.Technician
	err := row.Scan(&tech.ID, &tech.Name, &tech.Phone, &tech.Specialization)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan technician: %w", err)
	}
	return &tech, nil
}

func (t *pgTx) UpdateBicycle(ctx context.Context, b *model.Bicycle) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE bicycle
		 SET model = $2, type = $3, status = $4, station_id = $5, mileage = $6,
		     last_service_at = $7, version = version + 1
		 WHERE id = $1 AND version = $8`,
		b.ID, b.Model, b.Type, b.Status, b.StationID, b.Mileage, b.LastServiceAt, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update bicycle: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bicycle %d", ErrConcurrentModification, b.ID)
	}
	b.Version++
	return nil
}

func (t *pgTx) UpdateUser(ctx context.Context, u *model.User) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE users
		 SET balance = $2, debt = $3, version = version + 1
		 WHERE id = $1 AND version = $4`,
		u.ID, u.Balance, u.Debt, u.Version,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", ErrConcurrentModification, u.ID)
	}
	u.Version++
	return nil
}

func (t *pgTx) UpdateRental(ctx context.Context, r *model.Rental) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE rental
		 SET end_station_id = $2, status = $3, ended_at = $4, cost = $5, version = version + 1
		 WHERE id = $1 AND version = $6`,
		r.ID, r.EndStationID, r.Status, r.EndedAt, r.Cost, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update rental: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rental %d", ErrConcurrentModification, r.ID)
	}
	r.Version++
	return nil
}

func (t *pgTx) UpdateRepair(ctx context.Context, r *model.Repair) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE repair
		 SET status = $2, ended_at = $3, version = version + 1
		 WHERE id = $1 AND version = $4`,
		r.ID, r.Status, r.EndedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("update repair: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: repair %d", ErrConcurrentModification, r.ID)
	}
	r.Version++
	return nil
}

func (t *pgTx) CreateRental(ctx context.Context, r *model.Rental) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO rental (user_id, bicycle_id, start_station_id, status, started_at, cost)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, version`,
		r.UserID, r.BicycleID, r.StartStationID, r.Status, r.StartedAt, r.Cost,
	).Scan(&r.ID, &r.Version)
	if err != nil {
		return fmt.Errorf("insert rental: %w", err)
	}
	return nil
}

func (t *pgTx) CreateRepair(ctx context.Context, r *model.Repair) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO repair (bicycle_id, technician_id, description, status, started_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, version`,
		r.BicycleID, r.TechnicianID, r.Description, r.Status, r.StartedAt,
	).Scan(&r.ID, &r.Version)
	if err != nil {
		return fmt.Errorf("insert repair: %w", err)
	}
	return nil
}

func (t *pgTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO payment (user_id, amount, created_at)
		 VALUES ($1, $2, $3) RETURNING id`,
		p.UserID, p.Amount, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}
