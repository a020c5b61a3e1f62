package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS shizuku;

CREATE TABLE IF NOT EXISTS shizuku.workers (
    worker_id        TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    age              INTEGER,
    health_condition TEXT NOT NULL DEFAULT '',
    work_environment TEXT NOT NULL DEFAULT '',
    email            TEXT NOT NULL DEFAULT '',
    phone_number     TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS shizuku.sensor_data (
    id          BIGSERIAL PRIMARY KEY,
    ts          TIMESTAMPTZ NOT NULL,
    temperature DOUBLE PRECISION NOT NULL,
    humidity    DOUBLE PRECISION NOT NULL,
    voc         DOUBLE PRECISION NOT NULL,
    co          DOUBLE PRECISION NOT NULL,
    pm1         DOUBLE PRECISION NOT NULL,
    pm25        DOUBLE PRECISION NOT NULL,
    pm10        DOUBLE PRECISION NOT NULL,
    user_id     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS sensor_data_user_ts_idx ON shizuku.sensor_data (user_id, ts DESC);

CREATE TABLE IF NOT EXISTS shizuku.device_assignments (
    device_id        TEXT PRIMARY KEY,
    assigned_user_id TEXT NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

const workerColumns = `worker_id, name, age, health_condition, work_environment, email, phone_number`

const listWorkersSQL = `
    SELECT ` + workerColumns + `
    FROM shizuku.workers
    ORDER BY worker_id
`

func scanWorker(row pgx.Row) (telemetry.Worker, error) {
	var w telemetry.Worker
	err := row.Scan(
		&w.WorkerID,
		&w.Name,
		&w.Age,
		&w.HealthCondition,
		&w.WorkEnvironment,
		&w.Email,
		&w.PhoneNumber,
	)
	return w, err
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]telemetry.Worker, error) {
	rows, err := s.pool.Query(ctx, listWorkersSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workers := make([]telemetry.Worker, 0)
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

const getWorkerSQL = `
    SELECT ` + workerColumns + `
    FROM shizuku.workers
    WHERE worker_id = $1
`

// GetWorker returns a worker profile, or nil when unknown.
func (s *Store) GetWorker(ctx context.Context, workerID string) (*telemetry.Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx, getWorkerSQL, workerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

const upsertWorkerSQL = `
INSERT INTO shizuku.workers (worker_id, name, age, health_condition, work_environment, email, phone_number)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (worker_id) DO UPDATE
SET name = EXCLUDED.name,
    age = EXCLUDED.age,
    health_condition = EXCLUDED.health_condition,
    work_environment = EXCLUDED.work_environment,
    email = EXCLUDED.email,
    phone_number = EXCLUDED.phone_number`

// UpsertWorker inserts or updates a worker profile.
func (s *Store) UpsertWorker(ctx context.Context, w telemetry.Worker) error {
	_, err := s.pool.Exec(ctx, upsertWorkerSQL,
		w.WorkerID, w.Name, w.Age, w.HealthCondition, w.WorkEnvironment, w.Email, w.PhoneNumber)
	return err
}

// AutoWorker is the profile created for readings from unknown workers.
func AutoWorker(workerID string) telemetry.Worker {
	age := 25
	return telemetry.Worker{
		WorkerID:        workerID,
		Name:            "Auto Worker",
		Age:             &age,
		HealthCondition: "Healthy",
		WorkEnvironment: "Normal",
	}
}

const insertAutoWorkerSQL = `
INSERT INTO shizuku.workers (worker_id, name, age, health_condition, work_environment)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (worker_id) DO NOTHING`

// EnsureWorker returns the worker, creating an Auto Worker profile first
// when none exists.
func (s *Store) EnsureWorker(ctx context.Context, workerID string) (telemetry.Worker, error) {
	auto := AutoWorker(workerID)
	if _, err := s.pool.Exec(ctx, insertAutoWorkerSQL,
		auto.WorkerID, auto.Name, auto.Age, auto.HealthCondition, auto.WorkEnvironment); err != nil {
		return telemetry.Worker{}, err
	}
	w, err := s.GetWorker(ctx, workerID)
	if err != nil {
		return telemetry.Worker{}, err
	}
	if w == nil {
		return auto, nil
	}
	return *w, nil
}

const readingColumns = `user_id, ts, temperature, humidity, co, voc, pm1, pm25, pm10`

func scanReading(row pgx.Row) (telemetry.Reading, error) {
	var r telemetry.Reading
	err := row.Scan(
		&r.WorkerID,
		&r.Timestamp,
		&r.Temperature,
		&r.Humidity,
		&r.CO,
		&r.VOC,
		&r.PM1,
		&r.PM25,
		&r.PM10,
	)
	r.Timestamp = r.Timestamp.UTC()
	return r, err
}

const listReadingsSQL = `
    SELECT ` + readingColumns + `
    FROM shizuku.sensor_data
    ORDER BY id DESC
    LIMIT $1
`

// ListReadings returns the newest readings first.
func (s *Store) ListReadings(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	rows, err := s.pool.Query(ctx, listReadingsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]telemetry.Reading, 0)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LatestReading returns the newest stored reading, or nil.
func (s *Store) LatestReading(ctx context.Context) (*telemetry.Reading, error) {
	r, err := scanReading(s.pool.QueryRow(ctx, listReadingsSQL, 1))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const latestPerWorkerSQL = `
    SELECT DISTINCT ON (user_id) ` + readingColumns + `
    FROM shizuku.sensor_data
    ORDER BY user_id, ts DESC
`

// LatestPerWorker returns the newest reading of every worker.
func (s *Store) LatestPerWorker(ctx context.Context) ([]telemetry.Reading, error) {
	rows, err := s.pool.Query(ctx, latestPerWorkerSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]telemetry.Reading, 0)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

const insertReadingSQL = `INSERT INTO shizuku.sensor_data (ts, temperature, humidity, voc, co, pm1, pm25, pm10, user_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

// InsertReading stores one reading.
func (s *Store) InsertReading(ctx context.Context, r telemetry.Reading) error {
	_, err := s.pool.Exec(ctx, insertReadingSQL,
		r.Timestamp, r.Temperature, r.Humidity, r.VOC, r.CO, r.PM1, r.PM25, r.PM10, r.WorkerID)
	return err
}

// InsertReadings writes readings in one batch.
func (s *Store) InsertReadings(ctx context.Context, readings []telemetry.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(insertReadingSQL, r.Timestamp, r.Temperature, r.Humidity, r.VOC, r.CO, r.PM1, r.PM25, r.PM10, r.WorkerID)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range readings {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}

const assignDeviceSQL = `
INSERT INTO shizuku.device_assignments (device_id, assigned_user_id, updated_at)
VALUES ($1,$2,NOW())
ON CONFLICT (device_id) DO UPDATE
SET assigned_user_id = EXCLUDED.assigned_user_id,
    updated_at = NOW()`

// AssignDevice maps a device to a worker.
func (s *Store) AssignDevice(ctx context.Context, deviceID, workerID string) error {
	_, err := s.pool.Exec(ctx, assignDeviceSQL, deviceID, workerID)
	return err
}

const assignedWorkerSQL = `
    SELECT assigned_user_id
    FROM shizuku.device_assignments
    WHERE device_id = $1
`

// AssignedWorker resolves a device to its worker; ok is false when the device
// has no assignment.
func (s *Store) AssignedWorker(ctx context.Context, deviceID string) (workerID string, ok bool, err error) {
	err = s.pool.QueryRow(ctx, assignedWorkerSQL, deviceID).Scan(&workerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	workerID = strings.TrimSpace(workerID)
	return workerID, workerID != "", nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
