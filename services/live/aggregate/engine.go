package aggregate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// DefaultTimeout bounds one historical pull.
const DefaultTimeout = 10 * time.Second

// HistorySource supplies the historical pull.
type HistorySource interface {
	Readings(ctx context.Context) ([]telemetry.Reading, error)
	Workers(ctx context.Context) ([]telemetry.Worker, error)
}

// InputError reports a failed or malformed historical pull.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("aggregation input %s: %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Comparison is everything the bar, pie and global trend views need.
type Comparison struct {
	Filter  string           `json:"filter"`
	Metric  telemetry.Metric `json:"metric"`
	Workers []WorkerAverage  `json:"workers"`
	Pie     []Slice          `json:"pie"`
	Overall WorkerAverage    `json:"overall"`
	Skipped int              `json:"skipped"`
}

// Empty returns the zero comparison for filter and metric.
func Empty(filter string, metric telemetry.Metric) Comparison {
	return Comparison{
		Filter:  filter,
		Metric:  metric,
		Workers: []WorkerAverage{},
		Pie:     []Slice{},
		Overall: Summarize(Record{WorkerID: AllWorkers}),
	}
}

// Engine runs comparisons over a HistorySource.
type Engine struct {
	Source  HistorySource
	Timeout time.Duration
	Logger  *log.Logger
}

// Compare pulls history and builds the comparison. A failed pull is logged and
// yields an empty comparison so views stay renderable.
func (e *Engine) Compare(ctx context.Context, filter string, metric telemetry.Metric) Comparison {
	if filter == "" {
		filter = AllWorkers
	}

	readings, workers, err := e.pull(ctx)
	if err != nil {
		e.logger().Printf("aggregate: %v", err)
		return Empty(filter, metric)
	}

	records, skipped := Group(readings)
	if skipped > 0 {
		e.logger().Printf("aggregate: %v", &InputError{Op: "readings", Err: fmt.Errorf("%d readings without worker id skipped", skipped)})
	}

	averages := Averages(records, filter)
	return Comparison{
		Filter:  filter,
		Metric:  metric,
		Workers: averages,
		Pie:     Pie(averages, metric, workers),
		Overall: Summarize(Overall(readings)),
		Skipped: skipped,
	}
}

func (e *Engine) pull(ctx context.Context) ([]telemetry.Reading, []telemetry.Worker, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	readings, err := e.Source.Readings(ctx)
	if err != nil {
		return nil, nil, &InputError{Op: "readings", Err: err}
	}
	workers, err := e.Source.Workers(ctx)
	if err != nil {
		return nil, nil, &InputError{Op: "workers", Err: err}
	}
	return readings, workers, nil
}

func (e *Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}
