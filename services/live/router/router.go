// Package router applies the per-role relevance rules to decoded events and
// keeps the live view state of one subscription.
package router

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/history"
	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

const defaultWorkerAlert = "Health Alert!"

// IsUnsafe reports whether level belongs to the admin alert feed.
func IsUnsafe(level telemetry.RiskLevel) bool {
	return level == telemetry.RiskUnsafe
}

// Relevant decides whether ev should surface for sub.
func Relevant(sub telemetry.Subscription, ev telemetry.RiskEvent) bool {
	switch sub.Role {
	case telemetry.RoleWorker:
		return sub.Identity != "" && ev.WorkerID == sub.Identity
	case telemetry.RoleAdmin:
		return IsUnsafe(ev.RiskLevel)
	}
	return false
}

// Notification is what a session hands to the presentation layer.
type Notification struct {
	Role     telemetry.Role
	WorkerID string
	Level    telemetry.RiskLevel
	Message  string
	Audible  bool
	Event    telemetry.RiskEvent
}

// Notifier receives notifications. Implementations must not block for long;
// they run on the connection goroutine.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

type noopNotifier struct{}

func (noopNotifier) Notify(Notification) {}

// TrendPoint is one sample on a trend or live graph.
type TrendPoint struct {
	WorkerID  string                 `json:"worker_id"`
	Timestamp time.Time              `json:"timestamp"`
	Values    telemetry.SensorValues `json:"values"`
}

// Option customises a Session.
type Option func(*Session)

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithDropHook is called for every event that reaches none of the session's
// buffers.
func WithDropHook(fn func(telemetry.RiskEvent)) Option {
	return func(s *Session) { s.onDrop = fn }
}

// WithProfile seeds the worker profile snapshot.
func WithProfile(p *telemetry.WorkerProfile) Option {
	return func(s *Session) { s.profile = cloneProfile(p) }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session holds the view state for one subscription. Handle is meant to be
// called from a single connection goroutine; readers may call the snapshot
// accessors concurrently.
type Session struct {
	sub      telemetry.Subscription
	notifier Notifier
	onDrop   func(telemetry.RiskEvent)
	logger   *log.Logger

	mu      sync.RWMutex
	profile *telemetry.WorkerProfile

	alerts *history.Buffer[telemetry.RiskEvent]
	trend  *history.Buffer[TrendPoint]
}

// NewSession builds the session for sub using the capacities for its role.
func NewSession(sub telemetry.Subscription, caps history.Capacities, opts ...Option) (*Session, error) {
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	s := &Session{
		sub:      sub,
		notifier: noopNotifier{},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch sub.Role {
	case telemetry.RoleWorker:
		s.alerts = history.New[telemetry.RiskEvent](caps.WorkerAlerts)
		s.trend = history.New[TrendPoint](caps.WorkerTrend)
	case telemetry.RoleAdmin:
		s.alerts = history.New[telemetry.RiskEvent](caps.AdminAlerts)
		s.trend = history.New[TrendPoint](caps.AdminLiveGraph)
	}
	return s, nil
}

// Subscription returns the scope this session was built for.
func (s *Session) Subscription() telemetry.Subscription {
	return s.sub
}

// Handle processes one decoded event. It has the channel.EventFunc shape.
func (s *Session) Handle(ev telemetry.RiskEvent) {
	switch s.sub.Role {
	case telemetry.RoleWorker:
		s.handleWorker(ev)
	case telemetry.RoleAdmin:
		s.handleAdmin(ev)
	}
}

func (s *Session) handleWorker(ev telemetry.RiskEvent) {
	if !Relevant(s.sub, ev) {
		s.drop(ev)
		return
	}

	if ev.WorkerProfile != nil {
		s.mu.Lock()
		s.profile = cloneProfile(ev.WorkerProfile)
		s.mu.Unlock()
	}

	point := TrendPoint{WorkerID: ev.WorkerID, Timestamp: ev.Timestamp, Values: ev.Details}
	if ev.Kind != telemetry.KindAlert {
		// data frames always land in the trend, even without sensor values
		s.trend.Append(point)
		return
	}
	s.alerts.Append(ev)
	if !ev.Details.Empty() {
		s.trend.Append(point)
	}

	msg := ev.PersonalizedAdvice
	if msg == "" {
		msg = defaultWorkerAlert
	}
	s.notifier.Notify(Notification{
		Role:     s.sub.Role,
		WorkerID: ev.WorkerID,
		Level:    ev.RiskLevel,
		Message:  msg,
		Audible:  true,
		Event:    ev,
	})
}

func (s *Session) handleAdmin(ev telemetry.RiskEvent) {
	// the live graph sees every reading, the alert feed only unsafe ones
	graphed := !ev.Details.Empty()
	if graphed {
		s.trend.Append(TrendPoint{WorkerID: ev.WorkerID, Timestamp: ev.Timestamp, Values: ev.Details})
	}

	if !Relevant(s.sub, ev) {
		if !graphed {
			s.drop(ev)
		}
		return
	}
	s.alerts.Append(ev)

	text := ev.AlertText
	if text == "" {
		text = ev.PersonalizedAdvice
	}
	who := ev.UserName
	if who == "" {
		who = ev.WorkerID
	}
	s.notifier.Notify(Notification{
		Role:     s.sub.Role,
		WorkerID: ev.WorkerID,
		Level:    ev.RiskLevel,
		Message:  fmt.Sprintf("ALERT: %s for %s", text, who),
		Event:    ev,
	})
}

func (s *Session) drop(ev telemetry.RiskEvent) {
	if s.onDrop != nil {
		s.onDrop(ev)
	}
}

// Alerts returns the alert buffer, newest first.
func (s *Session) Alerts() []telemetry.RiskEvent {
	return s.alerts.Newest()
}

// Trend returns the worker trend or admin live graph, oldest first.
func (s *Session) Trend() []TrendPoint {
	return s.trend.Snapshot()
}

// Profile returns a copy of the current profile snapshot, or nil.
func (s *Session) Profile() *telemetry.WorkerProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProfile(s.profile)
}

// Reset clears buffers; the profile snapshot is kept.
func (s *Session) Reset() {
	s.alerts.Reset()
	s.trend.Reset()
	s.logger.Printf("router: session %s reset", s.sub)
}

func cloneProfile(p *telemetry.WorkerProfile) *telemetry.WorkerProfile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Age != nil {
		age := *p.Age
		cp.Age = &age
	}
	return &cp
}
