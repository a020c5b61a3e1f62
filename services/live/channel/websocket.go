package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

const (
	// Time allowed to write a control frame.
	writeWait = 10 * time.Second

	// Time allowed between server frames, pings included.
	pongWait = 60 * time.Second

	// Maximum frame size accepted from the server.
	maxMessageSize = 64 * 1024
)

// WebSocketDialer connects to the role hub at {BaseURL}/ws/{role}. Worker
// subscriptions add a worker_id query parameter.
type WebSocketDialer struct {
	BaseURL string
	Header  http.Header
	Dialer  *websocket.Dialer
}

// URL returns the endpoint dialed for sub.
func (d *WebSocketDialer) URL(sub telemetry.Subscription) (string, error) {
	base, err := url.Parse(strings.TrimRight(d.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", base.Scheme)
	}

	base.Path = base.Path + "/ws/" + url.PathEscape(string(sub.Role))
	if sub.Identity != "" {
		q := base.Query()
		q.Set("worker_id", sub.Identity)
		base.RawQuery = q.Encode()
	}
	return base.String(), nil
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, sub telemetry.Subscription) (Conn, error) {
	target, err := d.URL(sub)
	if err != nil {
		return nil, err
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", target, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
	once sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}
