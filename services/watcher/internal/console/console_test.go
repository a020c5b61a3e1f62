package console

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/aggregate"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/channel"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/history"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/router"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

func ptr(v float64) *float64 { return &v }

func newConsole() (*Console, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(log.New(&buf, "", 0), 0.01), &buf
}

func TestHandleEventLogsChangesAndForwards(t *testing.T) {
	c, buf := newConsole()
	sub := telemetry.Subscription{Role: telemetry.RoleAdmin}
	session, err := router.NewSession(sub, history.DefaultCapacities(), router.WithNotifier(c))
	if err != nil {
		t.Fatal(err)
	}
	c.Attach(session)

	ev := telemetry.RiskEvent{
		Kind:      telemetry.KindAlert,
		WorkerID:  "w1",
		RiskLevel: telemetry.RiskUnsafe,
		Details:   telemetry.SensorValues{PM25: ptr(80), CO: ptr(-999)},
		AlertText: "Alert for w1",
	}
	c.HandleEvent(ev)
	c.HandleEvent(ev)

	out := buf.String()
	if strings.Count(out, "[Unsafe] w1 pm25=80.000") != 1 {
		t.Fatalf("sensor line should be logged once:\n%s", out)
	}
	if strings.Contains(out, "co=") {
		t.Fatalf("sentinel value leaked into log:\n%s", out)
	}
	if strings.Count(out, "ALERT") != 2 {
		t.Fatalf("expected two alert notifications:\n%s", out)
	}
	if got := len(session.Alerts()); got != 2 {
		t.Fatalf("session alerts = %d, want 2", got)
	}
	if _, ok := session.Alerts()[0].Details.Value(telemetry.MetricCO); ok {
		t.Fatal("session received un-normalised CO")
	}
}

func TestStatusAndComparison(t *testing.T) {
	c, buf := newConsole()
	c.Status(telemetry.Subscription{Role: telemetry.RoleWorker, Identity: "w1"}, channel.StateConnected)
	c.Comparison(aggregate.Empty(aggregate.AllWorkers, telemetry.MetricPM25))
	c.Comparison(aggregate.Comparison{
		Filter:  aggregate.AllWorkers,
		Metric:  telemetry.MetricPM25,
		Workers: []aggregate.WorkerAverage{{WorkerID: "A"}, {WorkerID: "B"}},
		Pie:     []aggregate.Slice{{WorkerID: "A", Label: "Ana", Value: 15}, {WorkerID: "B", Label: "B", Value: 5}},
		Overall: aggregate.WorkerAverage{Averages: map[telemetry.Metric]float64{telemetry.MetricPM25: 11.67}},
	})

	out := buf.String()
	for _, want := range []string{
		"subscription worker:w1 is connected",
		"comparison all/pm25: no data",
		"comparison all/pm25 over 2 workers (overall 11.67): Ana=15.00 B=5.00",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
