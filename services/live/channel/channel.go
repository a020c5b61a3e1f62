// Package channel maintains one live connection per subscription, decodes
// wire frames into telemetry events and reconnects after transport failures.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

// State is the lifecycle state of a Handle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Conn is one transport connection delivering raw frames.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens transport connections for a subscription.
type Dialer interface {
	Dial(ctx context.Context, sub telemetry.Subscription) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, sub telemetry.Subscription) (Conn, error)

// Dial calls f(ctx, sub).
func (f DialerFunc) Dial(ctx context.Context, sub telemetry.Subscription) (Conn, error) {
	return f(ctx, sub)
}

// EventFunc receives decoded events in arrival order.
type EventFunc func(telemetry.RiskEvent)

// StatusFunc is told about connected, disconnected and closed transitions.
type StatusFunc func(sub telemetry.Subscription, state State)

// ConnectionError reports an unreachable or dropped transport.
type ConnectionError struct {
	Sub     telemetry.Subscription
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s (attempt %d): %v", e.Sub, e.Attempt, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Clock abstracts time for the reconnect timer.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }
