package aggregate

import (
	"testing"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

func TestGroupAverages(t *testing.T) {
	readings := []telemetry.Reading{
		{WorkerID: "A", PM25: 10},
		{WorkerID: "A", PM25: 20},
		{WorkerID: "B", PM25: 5},
	}

	records, skipped := Group(readings)
	if skipped != 0 {
		t.Fatalf("skipped = %d", skipped)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	byID := map[string]Record{}
	for _, r := range records {
		byID[r.WorkerID] = r
	}
	if got := byID["A"].Average(telemetry.MetricPM25); got != 15 {
		t.Errorf("average(A, pm25) = %v, want 15", got)
	}
	if got := byID["B"].Average(telemetry.MetricPM25); got != 5 {
		t.Errorf("average(B, pm25) = %v, want 5", got)
	}
	if _, ok := byID["C"]; ok {
		t.Errorf("worker without readings present in result")
	}
	if got := byID["A"].Average(telemetry.MetricCO); got != 0 {
		t.Errorf("missing metric average = %v, want 0", got)
	}
}

func TestGroupKeepsFirstAppearanceOrder(t *testing.T) {
	records, _ := Group([]telemetry.Reading{{WorkerID: "z"}, {WorkerID: "a"}, {WorkerID: "z"}, {WorkerID: "m"}})
	want := []string{"z", "a", "m"}
	for i, id := range want {
		if records[i].WorkerID != id {
			t.Fatalf("records[%d] = %s, want %s", i, records[i].WorkerID, id)
		}
	}
}

func TestGroupSkipsUnattributed(t *testing.T) {
	records, skipped := Group([]telemetry.Reading{{PM10: 4}, {WorkerID: "A", PM10: 2}})
	if skipped != 1 || len(records) != 1 {
		t.Fatalf("records=%d skipped=%d", len(records), skipped)
	}
}

func TestAverageEmptyRecord(t *testing.T) {
	if got := (Record{}).Average(telemetry.MetricPM25); got != 0 {
		t.Fatalf("Average() = %v, want 0", got)
	}
}

func TestAveragesFilterAndRounding(t *testing.T) {
	records, _ := Group([]telemetry.Reading{
		{WorkerID: "A", CO: 1},
		{WorkerID: "A", CO: 1},
		{WorkerID: "A", CO: 2},
		{WorkerID: "B", CO: 9},
	})

	all := Averages(records, AllWorkers)
	if len(all) != 2 {
		t.Fatalf("len(all) = %d", len(all))
	}
	if got := all[0].Averages[telemetry.MetricCO]; got != 1.33 {
		t.Errorf("rounded co = %v, want 1.33", got)
	}

	one := Averages(records, "B")
	if len(one) != 1 || one[0].WorkerID != "B" || one[0].Averages[telemetry.MetricCO] != 9 {
		t.Errorf("filtered = %+v", one)
	}

	if none := Averages(records, "nobody"); len(none) != 0 {
		t.Errorf("unknown worker filter = %+v", none)
	}
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		1.334:  1.33,
		1.236:  1.24,
		-1.236: -1.24,
		15:     15,
	}
	for in, want := range tests {
		if got := Round2(in); got != want {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestOverall(t *testing.T) {
	rec := Overall([]telemetry.Reading{
		{WorkerID: "A", Temperature: 30},
		{WorkerID: "B", Temperature: 20},
		{Temperature: 1000},
	})
	if rec.WorkerID != AllWorkers || rec.Count != 2 {
		t.Fatalf("Overall() = %+v", rec)
	}
	if got := rec.Average(telemetry.MetricTemperature); got != 25 {
		t.Fatalf("overall temperature = %v, want 25", got)
	}
}

func TestPieLabels(t *testing.T) {
	averages := []WorkerAverage{
		{WorkerID: "A", Averages: map[telemetry.Metric]float64{telemetry.MetricPM25: 15}},
		{WorkerID: "B", Averages: map[telemetry.Metric]float64{telemetry.MetricPM25: 5}},
	}
	workers := []telemetry.Worker{{WorkerID: "A", Name: "Ana"}, {WorkerID: "B"}}

	slices := Pie(averages, telemetry.MetricPM25, workers)
	if len(slices) != 2 {
		t.Fatalf("len(slices) = %d", len(slices))
	}
	if slices[0].Label != "Ana" || slices[0].Value != 15 {
		t.Errorf("slices[0] = %+v", slices[0])
	}
	if slices[1].Label != "B" || slices[1].Value != 5 {
		t.Errorf("slices[1] = %+v", slices[1])
	}
}
