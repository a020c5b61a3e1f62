// Package console prints a live subscription to the service log: alerts as
// they arrive, sensor changes per worker and periodic comparisons.
package console

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/aggregate"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/channel"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/router"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/watcher/internal/utils"
)

// Sink forwards normalised events to the session.
type Sink interface {
	Handle(ev telemetry.RiskEvent)
}

// Console logs what a session sees.
type Console struct {
	logger  *log.Logger
	epsilon float64
	sink    Sink

	mu   sync.Mutex
	last map[string]telemetry.SensorValues
}

// New returns a console writing to logger. Sensor values that moved less than
// epsilon since the worker's previous event are not logged again.
func New(logger *log.Logger, epsilon float64) *Console {
	if logger == nil {
		logger = log.Default()
	}
	return &Console{
		logger:  logger,
		epsilon: epsilon,
		last:    make(map[string]telemetry.SensorValues),
	}
}

// Attach sets the session events are forwarded to.
func (c *Console) Attach(s Sink) {
	c.sink = s
}

// HandleEvent has the channel.EventFunc shape.
func (c *Console) HandleEvent(ev telemetry.RiskEvent) {
	ev.Details = utils.NormalizeValues(ev.Details)

	if !ev.Details.Empty() && c.changed(ev.WorkerID, ev.Details) {
		c.logger.Printf("[%s] %s %s", ev.RiskLevel, ev.WorkerID, utils.FormatValues(ev.Details))
	}
	if c.sink != nil {
		c.sink.Handle(ev)
	}
}

func (c *Console) changed(workerID string, v telemetry.SensorValues) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[workerID]
	c.last[workerID] = v
	return !ok || utils.Changed(prev, v, c.epsilon)
}

// Notify implements router.Notifier.
func (c *Console) Notify(n router.Notification) {
	prefix := "NOTICE"
	if n.Audible {
		prefix = "ALERT \a"
	}
	c.logger.Printf("%s %s/%s %s: %s", prefix, n.Role, n.WorkerID, n.Level, n.Message)
}

// Status has the channel.StatusFunc shape.
func (c *Console) Status(sub telemetry.Subscription, state channel.State) {
	c.logger.Printf("subscription %s is %s", sub, state)
}

// Comparison logs a comparison summary.
func (c *Console) Comparison(cmp aggregate.Comparison) {
	if len(cmp.Workers) == 0 {
		c.logger.Printf("comparison %s/%s: no data", cmp.Filter, cmp.Metric)
		return
	}
	slices := make([]string, 0, len(cmp.Pie))
	for _, s := range cmp.Pie {
		slices = append(slices, fmt.Sprintf("%s=%.2f", s.Label, s.Value))
	}
	c.logger.Printf("comparison %s/%s over %d workers (overall %.2f): %s",
		cmp.Filter, cmp.Metric, len(cmp.Workers), cmp.Overall.Averages[cmp.Metric], strings.Join(slices, " "))
}
