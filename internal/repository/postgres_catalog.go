package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bikerent-system/internal/model"
)

// CreateStation сохраняет новую станцию.
func (r *PostgresRepository) CreateStation(ctx context.Context, s *model.Station) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO station (name, latitude, longitude) VALUES ($1, $2, $3) RETURNING id, version`,
		s.Name, s.Latitude, s.Longitude,
	).Scan(&s.ID, &s.Version)
	if err != nil {
		return fmt.Errorf("insert station: %w", err)
	}
	return nil
}

// GetStation возвращает станцию по идентификатору.
func (r *PostgresRepository) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	row := r.pool.QueryRow(ctx,
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

// ListStations возвращает все станции.
func (r *PostgresRepository) ListStations(ctx context.Context) ([]model.Station, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, version, name, latitude, longitude FROM station ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select stations: %w", err)
	}
	defer rows.Close()

	var res []model.Station
	for rows.Next() {
		var s model.Station
		if err := rows.Scan(&s.ID, &s.Version, &s.Name, &s.Latitude, &s.Longitude); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateStation обновляет данные станции.
func (r *PostgresRepository) UpdateStation(ctx context.Context, s *model.Station) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE station SET name = $2, latitude = $3, longitude = $4, version = version + 1
		 WHERE id = $1 AND version = $5`,
		s.ID, s.Name, s.Latitude, s.Longitude, s.Version,
	)
	if err != nil {
		return fmt.Errorf("update station: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: station %d", ErrConcurrentModification, s.ID)
	}
	s.Version++
	return nil
}

// DeleteStation удаляет станцию. Станция с велосипедами не удаляется.
func (r *PostgresRepository) DeleteStation(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int64
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bicycle WHERE station_id = $1`, id).Scan(&count)
	if err != nil {
		return fmt.Errorf("count station bicycles: %w", err)
	}
	if count > 0 {
		return ErrStationInUse
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM station WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CreateTechnician сохраняет нового механика.
func (r *PostgresRepository) CreateTechnician(ctx context.Context, t *model.Technician) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO technician (name, phone, specialization) VALUES ($1, $2, $3) RETURNING id`,
		t.Name, t.Phone, t.Specialization,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert technician: %w", err)
	}
	return nil
}

// GetTechnician возвращает механика по идентификатору.
func (r *PostgresRepository) GetTechnician(ctx context.Context, id int64) (*model.Technician, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, phone, specialization FROM technician WHERE id = $1`, id)

	var t model.Technician
	err := row.Scan(&t.ID, &t.Name, &t.Phone, &t.Specialization)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan technician: %w", err)
	}
	return &t, nil
}

// ListTechnicians возвращает всех механиков.
func (r *PostgresRepository) ListTechnicians(ctx context.Context) ([]model.Technician, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, phone, specialization FROM technician ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select technicians: %w", err)
	}
	defer rows.Close()

	var res []model.Technician
	for rows.Next() {
		var t model.Technician
		if err := rows.Scan(&t.ID, &t.Name, &t.Phone, &t.Specialization); err != nil {
			return nil, fmt.Errorf("scan technician: %w", err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// DeleteTechnician удаляет механика.
func (r *PostgresRepository) DeleteTechnician(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM technician WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete technician: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateBicycle сохраняет новый велосипед.
func (r *PostgresRepository) CreateBicycle(ctx context.Context, b *model.Bicycle) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO bicycle (model, type, status, station_id, mileage, last_service_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, version`,
		b.Model, b.Type, b.Status, b.StationID, b.Mileage, b.LastServiceAt,
	).Scan(&b.ID, &b.Version)
	if err != nil {
		return fmt.Errorf("insert bicycle: %w", err)
	}
	return nil
}

// GetBicycle возвращает велосипед по идентификатору без блокировки.
func (r *PostgresRepository) GetBicycle(ctx context.Context, id int64) (*model.Bicycle, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+bicycleColumns+` FROM bicycle WHERE id = $1`, id)
	return scanBicycle(row)
}

// ListBicycles возвращает велосипеды с необязательным фильтром по модели.
func (r *PostgresRepository) ListBicycles(ctx context.Context, modelFilter string) ([]model.Bicycle, error) {
	query := `SELECT ` + bicycleColumns + ` FROM bicycle`
	args := []any{}
	if modelFilter != "" {
		query += ` WHERE model ILIKE '%' || $1 || '%'`
		args = append(args, modelFilter)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select bicycles: %w", err)
	}
	defer rows.Close()

	return collectBicycles(rows)
}

// ListBicyclesNeedingService возвращает велосипеды с пробегом выше порога обслуживания.
func (r *PostgresRepository) ListBicyclesNeedingService(ctx context.Context) ([]model.Bicycle, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bicycleColumns+` FROM bicycle WHERE mileage > $1 ORDER BY mileage DESC`,
		model.ServiceThresholdMileage,
	)
	if err != nil {
		return nil, fmt.Errorf("select bicycles needing service: %w", err)
	}
	defer rows.Close()

	return collectBicycles(rows)
}

func collectBicycles(rows pgx.Rows) ([]model.Bicycle, error) {
	var res []model.Bicycle
	for rows.Next() {
		var b model.Bicycle
		err := rows.Scan(&b.ID, &b.Version, &b.Model, &b.Type, &b.Status, &b.StationID, &b.Mileage, &b.LastServiceAt)
		if err != nil {
			return nil, fmt.Errorf("scan bicycle: %w", err)
		}
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// DeleteBicycle удаляет велосипед. Велосипед в аренде не удаляется:
// строка сначала блокируется, чтобы не стереть велосипед у активной аренды.
func (r *PostgresRepository) DeleteBicycle(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := (&pgTx{tx: tx}).GetBicycleForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if b.IsRented() {
		return model.ErrBicycleRented
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bicycle WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete bicycle: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetRental возвращает аренду по идентификатору без блокировки.
// Используется координатором для предварительного определения набора блокировок.
func (r *PostgresRepository) GetRental(ctx context.Context, id int64) (*model.Rental, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+rentalColumns+` FROM rental WHERE id = $1`, id)
	return scanRental(row)
}

// ListRentalsByUser возвращает аренды пользователя.
func (r *PostgresRepository) ListRentalsByUser(ctx context.Context, userID int64) ([]model.Rental, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+rentalColumns+` FROM rental WHERE user_id = $1 ORDER BY started_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select rentals: %w", err)
	}
	defer rows.Close()

	return collectRentals(rows)
}

// ListRentals возвращает все аренды.
func (r *PostgresRepository) ListRentals(ctx context.Context) ([]model.Rental, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+rentalColumns+` FROM rental ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select rentals: %w", err)
	}
	defer rows.Close()

	return collectRentals(rows)
}

func collectRentals(rows pgx.Rows) ([]model.Rental, error) {
	var res []model.Rental
	for rows.Next() {
		var rnt model.Rental
		err := rows.Scan(&rnt.ID, &rnt.Version, &rnt.UserID, &rnt.BicycleID, &rnt.StartStationID,
			&rnt.EndStationID, &rnt.Status, &rnt.StartedAt, &rnt.EndedAt, &rnt.Cost)
		if err != nil {
			return nil, fmt.Errorf("scan rental: %w", err)
		}
		res = append(res, rnt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetRepair возвращает ремонт по идентификатору без блокировки.
func (r *PostgresRepository) GetRepair(ctx context.Context, id int64) (*model.Repair, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+repairColumns+` FROM repair WHERE id = $1`, id)
	return scanRepair(row)
}

// ListRepairs возвращает все ремонты.
func (r *PostgresRepository) ListRepairs(ctx context.Context) ([]model.Repair, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+repairColumns+` FROM repair ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select repairs: %w", err)
	}
	defer rows.Close()

	var res []model.Repair
	for rows.Next() {
		var rep model.Repair
		err := rows.Scan(&rep.ID, &rep.Version, &rep.BicycleID, &rep.TechnicianID,
			&rep.Description, &rep.Status, &rep.StartedAt, &rep.EndedAt)
		if err != nil {
			return nil, fmt.Errorf("scan repair: %w", err)
		}
		res = append(res, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
