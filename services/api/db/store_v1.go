package db

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// ReadingQuery filters the paginated readings listing.
type ReadingQuery struct {
	WorkerID string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

type ReadingsPage struct {
	Readings   []telemetry.Reading `json:"readings"`
	TotalCount int                 `json:"total_count"`
}

func (q ReadingQuery) where() (string, []any) {
	conditions := []string{}
	args := []any{}

	if q.WorkerID != "" {
		conditions = append(conditions, "user_id = $"+strconv.Itoa(len(args)+1))
		args = append(args, q.WorkerID)
	}
	if q.Since != nil {
		conditions = append(conditions, "ts >= $"+strconv.Itoa(len(args)+1))
		args = append(args, *q.Since)
	}
	if q.Until != nil {
		conditions = append(conditions, "ts <= $"+strconv.Itoa(len(args)+1))
		args = append(args, *q.Until)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (s *Store) ListReadingsPage(ctx context.Context, q ReadingQuery) (*ReadingsPage, error) {
	whereClause, args := q.where()

	countSQL := "SELECT COUNT(*) FROM shizuku.sensor_data " + whereClause
	var totalCount int
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&totalCount); err != nil {
		return nil, err
	}

	limitPos := len(args) + 1
	offsetPos := len(args) + 2
	args = append(args, q.Limit, q.Offset)

	query := strings.Builder{}
	query.WriteString("SELECT " + readingColumns + " ")
	query.WriteString("FROM shizuku.sensor_data ")
	query.WriteString(whereClause + " ")
	query.WriteString("ORDER BY ts DESC, id DESC ")
	query.WriteString("LIMIT $" + strconv.Itoa(limitPos) + " OFFSET $" + strconv.Itoa(offsetPos))

	rows, err := s.pool.Query(ctx, query.String(), args...)
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

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ReadingsPage{Readings: readings, TotalCount: totalCount}, nil
}

// WorkerStats holds SQL-side aggregates for one worker over a window.
type WorkerStats struct {
	WorkerID  string     `json:"worker_id"`
	Count     int        `json:"count"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	MaxPM25   *float64   `json:"max_pm25,omitempty"`
	MaxCO     *float64   `json:"max_co,omitempty"`
	MaxVOC    *float64   `json:"max_voc,omitempty"`
	AvgPM25   *float64   `json:"avg_pm25,omitempty"`
	AvgCO     *float64   `json:"avg_co,omitempty"`
	AvgVOC    *float64   `json:"avg_voc,omitempty"`
}

const workerStatsSQL = `
SELECT COUNT(*), MIN(ts), MAX(ts),
       MAX(pm25), MAX(co), MAX(voc),
       AVG(pm25), AVG(co), AVG(voc)
FROM shizuku.sensor_data
WHERE user_id = $1 AND ts >= $2
`

// GetWorkerStats summarises a worker's readings since the given time.
func (s *Store) GetWorkerStats(ctx context.Context, workerID string, since time.Time) (*WorkerStats, error) {
	stats := WorkerStats{WorkerID: workerID}
	if err := s.pool.QueryRow(ctx, workerStatsSQL, workerID, since).Scan(
		&stats.Count,
		&stats.FirstSeen,
		&stats.LastSeen,
		&stats.MaxPM25,
		&stats.MaxCO,
		&stats.MaxVOC,
		&stats.AvgPM25,
		&stats.AvgCO,
		&stats.AvgVOC,
	); err != nil {
		return nil, err
	}
	return &stats, nil
}
