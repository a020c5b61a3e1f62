// Package aggregate computes per-worker metric averages over historical
// readings for the comparison views.
package aggregate

import (
	"math"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// AllWorkers selects every worker.
const AllWorkers = "all"

// Record accumulates metric sums for one worker.
type Record struct {
	WorkerID string
	Sums     map[telemetry.Metric]float64
	Count    int
}

func newRecord(workerID string) *Record {
	return &Record{WorkerID: workerID, Sums: make(map[telemetry.Metric]float64, len(telemetry.TrackedMetrics))}
}

func (r *Record) add(reading telemetry.Reading) {
	for _, m := range telemetry.TrackedMetrics {
		r.Sums[m] += reading.Value(m)
	}
	r.Count++
}

// Average returns the full-precision mean of m, zero when empty.
func (r Record) Average(m telemetry.Metric) float64 {
	if r.Count == 0 {
		return 0
	}
	return r.Sums[m] / float64(r.Count)
}

// Group builds one Record per worker in first-appearance order. Readings
// without a worker id are skipped and counted.
func Group(readings []telemetry.Reading) (records []Record, skipped int) {
	index := make(map[string]*Record)
	order := make([]string, 0)

	for _, reading := range readings {
		if reading.WorkerID == "" {
			skipped++
			continue
		}
		rec, ok := index[reading.WorkerID]
		if !ok {
			rec = newRecord(reading.WorkerID)
			index[reading.WorkerID] = rec
			order = append(order, reading.WorkerID)
		}
		rec.add(reading)
	}

	records = make([]Record, 0, len(order))
	for _, id := range order {
		records = append(records, *index[id])
	}
	return records, skipped
}

// Overall folds every attributed reading into a single "all" record.
func Overall(readings []telemetry.Reading) Record {
	rec := newRecord(AllWorkers)
	for _, reading := range readings {
		if reading.WorkerID == "" {
			continue
		}
		rec.add(reading)
	}
	return *rec
}

// WorkerAverage is the display shape of a Record.
type WorkerAverage struct {
	WorkerID string                       `json:"worker_id"`
	Count    int                          `json:"count"`
	Averages map[telemetry.Metric]float64 `json:"averages"`
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summarize converts a record into rounded averages.
func Summarize(rec Record) WorkerAverage {
	avg := WorkerAverage{
		WorkerID: rec.WorkerID,
		Count:    rec.Count,
		Averages: make(map[telemetry.Metric]float64, len(telemetry.TrackedMetrics)),
	}
	for _, m := range telemetry.TrackedMetrics {
		avg.Averages[m] = Round2(rec.Average(m))
	}
	return avg
}

// Averages summarises records. filter is AllWorkers or a single worker id.
func Averages(records []Record, filter string) []WorkerAverage {
	out := make([]WorkerAverage, 0, len(records))
	for _, rec := range records {
		if filter != AllWorkers && filter != "" && rec.WorkerID != filter {
			continue
		}
		out = append(out, Summarize(rec))
	}
	return out
}

// Slice is one pie segment.
type Slice struct {
	WorkerID string  `json:"worker_id"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
}

// Pie shapes averages for metric into labelled slices. Labels use the
// worker's name when known.
func Pie(averages []WorkerAverage, metric telemetry.Metric, workers []telemetry.Worker) []Slice {
	names := make(map[string]string, len(workers))
	for _, w := range workers {
		if w.Name != "" {
			names[w.WorkerID] = w.Name
		}
	}

	slices := make([]Slice, 0, len(averages))
	for _, avg := range averages {
		label, ok := names[avg.WorkerID]
		if !ok {
			label = avg.WorkerID
		}
		slices = append(slices, Slice{WorkerID: avg.WorkerID, Label: label, Value: avg.Averages[metric]})
	}
	return slices
}
