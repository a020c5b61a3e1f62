package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// HTTPSource pulls history from the API service.
type HTTPSource struct {
	BaseURL string
	Limit   int
	Token   string // optional bearer token
	Client  *http.Client
}

// NewHTTPSource returns a source with a pooled client bounded by timeout.
func NewHTTPSource(baseURL string, limit int, timeout time.Duration) *HTTPSource {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &HTTPSource{
		BaseURL: baseURL,
		Limit:   limit,
		Client:  &http.Client{Timeout: timeout, Transport: tr},
	}
}

type readingsResponse struct {
	Readings []telemetry.Reading `json:"readings"`
}

type workersResponse struct {
	Workers []telemetry.Worker `json:"workers"`
}

// Readings fetches /api/sensor_data.
func (s *HTTPSource) Readings(ctx context.Context) ([]telemetry.Reading, error) {
	q := url.Values{}
	if s.Limit > 0 {
		q.Set("limit", strconv.Itoa(s.Limit))
	}
	var payload readingsResponse
	if err := s.fetch(ctx, "/api/sensor_data", q, &payload); err != nil {
		return nil, err
	}
	return payload.Readings, nil
}

// Workers fetches /api/workers.
func (s *HTTPSource) Workers(ctx context.Context) ([]telemetry.Worker, error) {
	var payload workersResponse
	if err := s.fetch(ctx, "/api/workers", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Workers, nil
}

func (s *HTTPSource) fetch(ctx context.Context, path string, q url.Values, out any) error {
	target := strings.TrimRight(s.BaseURL, "/") + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request %s: unexpected status %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
