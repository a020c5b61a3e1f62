// Package telemetry holds the value types shared by the live alert feed:
// sensor readings, risk events, subscriptions and the wire codec.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Metric names a tracked sensor channel.
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricCO          Metric = "co"
	MetricVOC         Metric = "voc"
	MetricPM1         Metric = "pm1"
	MetricPM25        Metric = "pm25"
	MetricPM10        Metric = "pm10"
)

// TrackedMetrics is the set used by the comparison views.
var TrackedMetrics = []Metric{MetricPM10, MetricPM25, MetricPM1, MetricCO, MetricVOC, MetricTemperature}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricTemperature, MetricHumidity, MetricCO, MetricVOC, MetricPM1, MetricPM25, MetricPM10:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Reading is one telemetry sample attributed to a worker.
type Reading struct {
	WorkerID    string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO          float64   `json:"co"`
	VOC         float64   `json:"voc"`
	PM1         float64   `json:"pm1"`
	PM25        float64   `json:"pm25"`
	PM10        float64   `json:"pm10"`
}

// Value returns the reading's value for m, zero for unknown metrics.
func (r Reading) Value(m Metric) float64 {
	switch m {
	case MetricTemperature:
		return r.Temperature
	case MetricHumidity:
		return r.Humidity
	case MetricCO:
		return r.CO
	case MetricVOC:
		return r.VOC
	case MetricPM1:
		return r.PM1
	case MetricPM25:
		return r.PM25
	case MetricPM10:
		return r.PM10
	}
	return 0
}

// SensorValues is the sensor subset carried by a RiskEvent. Nil fields were
// absent on the wire.
type SensorValues struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	CO          *float64 `json:"co,omitempty"`
	VOC         *float64 `json:"voc,omitempty"`
	PM1         *float64 `json:"pm1,omitempty"`
	PM25        *float64 `json:"pm25,omitempty"`
	PM10        *float64 `json:"pm10,omitempty"`
}

// Value reports the value of m and whether it was present.
func (s SensorValues) Value(m Metric) (float64, bool) {
	var p *float64
	switch m {
	case MetricTemperature:
		p = s.Temperature
	case MetricHumidity:
		p = s.Humidity
	case MetricCO:
		p = s.CO
	case MetricVOC:
		p = s.VOC
	case MetricPM1:
		p = s.PM1
	case MetricPM25:
		p = s.PM25
	case MetricPM10:
		p = s.PM10
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Empty reports whether no metric is present.
func (s SensorValues) Empty() bool {
	return s.Temperature == nil && s.Humidity == nil && s.CO == nil && s.VOC == nil &&
		s.PM1 == nil && s.PM25 == nil && s.PM10 == nil
}

// SensorValuesFromReading converts a full reading into a sensor subset.
func SensorValuesFromReading(r Reading) SensorValues {
	f := func(v float64) *float64 { return &v }
	return SensorValues{
		Temperature: f(r.Temperature),
		Humidity:    f(r.Humidity),
		CO:          f(r.CO),
		VOC:         f(r.VOC),
		PM1:         f(r.PM1),
		PM25:        f(r.PM25),
		PM10:        f(r.PM10),
	}
}

// RiskLevel is the discrete severity assigned by the classifier.
type RiskLevel string

const (
	RiskCritical RiskLevel = "Critical"
	RiskHigh     RiskLevel = "High"
	RiskModerate RiskLevel = "Moderate"
	RiskLow      RiskLevel = "Low"
	RiskUnsafe   RiskLevel = "Unsafe"
	RiskNormal   RiskLevel = "Normal"
)

// ParseRiskLevel accepts the wire spelling of a risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch l := RiskLevel(s); l {
	case RiskCritical, RiskHigh, RiskModerate, RiskLow, RiskUnsafe, RiskNormal:
		return l, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// Kind distinguishes alerts from plain data frames.
type Kind string

const (
	KindAlert Kind = "alert"
	KindData  Kind = "data"
)

// WorkerProfile is the optional profile snapshot attached to an event.
type WorkerProfile struct {
	Name            string `json:"name"`
	Age             *int   `json:"age,omitempty"`
	HealthCondition string `json:"health_condition,omitempty"`
}

// RiskEvent is a classified reading as delivered to subscribers.
type RiskEvent struct {
	Kind               Kind
	WorkerID           string
	RiskLevel          RiskLevel
	Timestamp          time.Time
	Details            SensorValues
	PersonalizedAdvice string
	WorkerProfile      *WorkerProfile
	UserName           string
	AlertText          string
}

// Validate checks the event invariants.
func (e RiskEvent) Validate() error {
	if e.WorkerID == "" {
		return errors.New("event has no worker id")
	}
	switch e.Kind {
	case KindAlert:
		if e.RiskLevel == "" {
			return errors.New("alert event has no risk level")
		}
	case KindData:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// Role identifies a subscriber audience.
type Role string

const (
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleWorker, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Subscription scopes one live connection.
type Subscription struct {
	Role     Role
	Identity string
}

// Validate checks that worker subscriptions carry an identity.
func (s Subscription) Validate() error {
	switch s.Role {
	case RoleWorker:
		if s.Identity == "" {
			return errors.New("worker subscription requires an identity")
		}
	case RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", s.Role)
	}
	return nil
}

func (s Subscription) String() string {
	if s.Identity == "" {
		return string(s.Role)
	}
	return string(s.Role) + ":" + s.Identity
}

// Worker is a registered worker as returned by the history pull.
type Worker struct {
	WorkerID        string `json:"worker_id"`
	Name            string `json:"name"`
	Age             *int   `json:"age,omitempty"`
	HealthCondition string `json:"health_condition"`
	WorkEnvironment string `json:"work_environment"`
	Email           string `json:"email,omitempty"`
	PhoneNumber     string `json:"phone_number,omitempty"`
}

// Profile returns the event profile snapshot for w.
func (w Worker) Profile() *WorkerProfile {
	return &WorkerProfile{Name: w.Name, Age: w.Age, HealthCondition: w.HealthCondition}
}
