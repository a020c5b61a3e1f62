package channel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// Option customises a Manager.
type Option func(*Manager)

// WithReconnectDelay sets the fixed wait between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithMaxRetries bounds consecutive failed reconnects. Zero keeps retrying
// until the handle is closed.
func WithMaxRetries(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithMetrics installs a diagnostics hook.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStatusHandler registers a callback for connection status changes.
func WithStatusHandler(fn StatusFunc) Option {
	return func(m *Manager) { m.status = fn }
}

// Manager opens live connections. It holds no per-connection state, so one
// Manager can serve any number of handles.
type Manager struct {
	dialer     Dialer
	delay      time.Duration
	maxRetries int
	clock      Clock
	metrics    Metrics
	logger     *log.Logger
	status     StatusFunc
}

// NewManager creates a manager dialing through d.
func NewManager(d Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:  d,
		delay:   DefaultReconnectDelay,
		clock:   realClock{},
		metrics: NoopMetrics{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metrics returns the installed diagnostics hook.
func (m *Manager) Metrics() Metrics {
	return m.metrics
}

// Open validates sub and dials it. A failed first dial returns a
// *ConnectionError and no handle; callers retry on their own schedule.
// Cancelling ctx has the same effect as Close on the returned handle.
func (m *Manager) Open(ctx context.Context, sub telemetry.Subscription, handlers ...EventFunc) (*Handle, error) {
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:     uuid.NewString(),
		sub:    sub,
		m:      m,
		ctx:    hctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateConnecting,
	}
	for _, fn := range handlers {
		if fn != nil {
			h.handlers = append(h.handlers, fn)
		}
	}

	conn, err := m.dialer.Dial(hctx, sub)
	if err != nil {
		cancel()
		h.state = StateClosed
		close(h.done)
		return nil, &ConnectionError{Sub: sub, Attempt: 1, Err: err}
	}
	h.conn = conn
	h.setState(StateConnected)
	m.logger.Printf("channel: %s connected (handle=%s)", sub, h.id)

	go h.run(conn)
	return h, nil
}

// Handle is one open subscription. Events are delivered on a single goroutine
// in arrival order.
type Handle struct {
	id     string
	sub    telemetry.Subscription
	m      *Manager
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	conn     Conn
	handlers []EventFunc
}

// ID returns the handle identifier used in logs.
func (h *Handle) ID() string { return h.id }

// Subscription returns the scope of this handle.
func (h *Handle) Subscription() telemetry.Subscription { return h.sub }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// OnEvent registers fn for subsequent events.
func (h *Handle) OnEvent(fn EventFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.handlers = append(h.handlers, fn)
	h.mu.Unlock()
}

// Done is closed once the handle reaches StateClosed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close stops the connection and any pending reconnect, then waits for the
// connection goroutine to exit. It is safe to call more than once but must
// not be called from an EventFunc.
func (h *Handle) Close() {
	h.cancel()
	<-h.done
}

// closeConn unblocks a pending read once the handle context ends.
func (h *Handle) closeConn() {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (h *Handle) run(conn Conn) {
	defer close(h.done)
	defer h.setState(StateClosed)

	stop := context.AfterFunc(h.ctx, h.closeConn)
	defer stop()

	failures := 0
	for {
		h.read(conn)
		_ = conn.Close()
		h.m.metrics.Connected(h.sub.Role, false)
		if h.ctx.Err() != nil {
			return
		}
		h.setState(StateDisconnected)
		h.m.logger.Printf("channel: %s disconnected, reconnecting in %s", h.sub, h.m.delay)

		next, ok := h.reconnect(&failures)
		if !ok {
			return
		}
		conn = next
	}
}

// reconnect waits out the fixed delay and dials until a connection comes up,
// the handle is closed or the retries run out.
func (h *Handle) reconnect(failures *int) (Conn, bool) {
	for {
		if h.m.maxRetries > 0 && *failures >= h.m.maxRetries {
			h.m.logger.Printf("channel: %s giving up after %d failed reconnects", h.sub, *failures)
			return nil, false
		}

		select {
		case <-h.ctx.Done():
			return nil, false
		case <-h.m.clock.After(h.m.delay):
		}

		h.m.metrics.Reconnect(h.sub.Role)
		h.setState(StateConnecting)
		conn, err := h.m.dialer.Dial(h.ctx, h.sub)
		if err != nil {
			if h.ctx.Err() != nil {
				return nil, false
			}
			*failures++
			cerr := &ConnectionError{Sub: h.sub, Attempt: *failures, Err: err}
			h.m.logger.Printf("channel: %v", cerr)
			h.setState(StateDisconnected)
			continue
		}

		h.mu.Lock()
		if h.ctx.Err() != nil {
			h.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		h.conn = conn
		h.mu.Unlock()

		*failures = 0
		h.setState(StateConnected)
		h.m.logger.Printf("channel: %s reconnected (handle=%s)", h.sub, h.id)
		return conn, true
	}
}

func (h *Handle) read(conn Conn) {
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			if h.ctx.Err() == nil {
				h.m.logger.Printf("channel: %s read failed: %v", h.sub, err)
			}
			return
		}

		ev, err := telemetry.Decode(payload)
		if errors.Is(err, telemetry.ErrControlFrame) {
			continue
		}
		if err != nil {
			h.m.logger.Printf("channel: %s dropped frame: %v", h.sub, err)
			h.m.metrics.EventDropped(h.sub.Role, DropDecode)
			continue
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = h.m.clock.Now().UTC()
		}
		h.m.metrics.EventDecoded(h.sub.Role)
		h.dispatch(ev)
	}
}

func (h *Handle) dispatch(ev telemetry.RiskEvent) {
	h.mu.Lock()
	handlers := make([]EventFunc, len(h.handlers))
	copy(handlers, h.handlers)
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	prev := h.state
	h.state = s
	h.mu.Unlock()

	if prev == s {
		return
	}
	if s == StateConnected {
		h.m.metrics.Connected(h.sub.Role, true)
	}
	if h.m.status != nil && s != StateConnecting {
		h.m.status(h.sub, s)
	}
}
