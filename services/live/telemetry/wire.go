package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrControlFrame is returned for server status frames such as the
// {"status":"connected"} welcome message. They are not events.
var ErrControlFrame = errors.New("control frame")

// DecodeError describes a wire payload that could not be turned into a RiskEvent.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireSensors mirrors the sensor object; pm and pm2_5 are legacy device keys.
type wireSensors struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	CO          *float64 `json:"co"`
	VOC         *float64 `json:"voc"`
	PM1         *float64 `json:"pm1"`
	PM25        *float64 `json:"pm25"`
	PM          *float64 `json:"pm"`
	PM2_5       *float64 `json:"pm2_5"`
	PM10        *float64 `json:"pm10"`
	Timestamp   string   `json:"timestamp"`
}

func (w *wireSensors) values() SensorValues {
	if w == nil {
		return SensorValues{}
	}
	pm25 := w.PM25
	if pm25 == nil {
		pm25 = w.PM
	}
	if pm25 == nil {
		pm25 = w.PM2_5
	}
	return SensorValues{
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		CO:          w.CO,
		VOC:         w.VOC,
		PM1:         w.PM1,
		PM25:        pm25,
		PM10:        w.PM10,
	}
}

type wireMessage struct {
	Type               string         `json:"type,omitempty"`
	Status             string         `json:"status,omitempty"`
	WorkerID           string         `json:"worker_id,omitempty"`
	UserID             string         `json:"user_id,omitempty"`
	UserName           string         `json:"user_name,omitempty"`
	RiskLevel          string         `json:"risk_level,omitempty"`
	Timestamp          string         `json:"timestamp,omitempty"`
	Details            *wireSensors   `json:"details,omitempty"`
	SensorData         *wireSensors   `json:"sensor_data,omitempty"`
	PersonalizedAdvice string         `json:"personalized_advice,omitempty"`
	WorkerProfile      *WorkerProfile `json:"worker_profile,omitempty"`
	Alert              string         `json:"alert,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts ISO-8601 and the device "YYYY-MM-DD HH:MM:SS" form.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Decode turns one wire payload into a canonical RiskEvent. The details and
// sensor_data keys are treated as aliases, as are worker_id and user_id.
// A zero Timestamp means the payload carried none.
func Decode(payload []byte) (RiskEvent, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return RiskEvent{}, &DecodeError{Reason: "payload is not a JSON object"}
	}

	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return RiskEvent{}, &DecodeError{Reason: "invalid json", Err: err}
	}

	workerID := msg.WorkerID
	if workerID == "" {
		workerID = msg.UserID
	}
	if workerID == "" {
		if msg.Status != "" {
			return RiskEvent{}, ErrControlFrame
		}
		return RiskEvent{}, &DecodeError{Reason: "missing worker_id"}
	}

	ev := RiskEvent{
		WorkerID:           workerID,
		PersonalizedAdvice: msg.PersonalizedAdvice,
		WorkerProfile:      msg.WorkerProfile,
		UserName:           msg.UserName,
		AlertText:          msg.Alert,
	}

	if msg.RiskLevel != "" {
		level, err := ParseRiskLevel(msg.RiskLevel)
		if err != nil {
			return RiskEvent{}, &DecodeError{Reason: "risk_level", Err: err}
		}
		ev.RiskLevel = level
	}

	switch msg.Type {
	case string(KindAlert):
		ev.Kind = KindAlert
	case string(KindData):
		ev.Kind = KindData
	case "":
		ev.Kind = KindData
		if ev.RiskLevel != "" {
			ev.Kind = KindAlert
		}
	default:
		return RiskEvent{}, &DecodeError{Reason: fmt.Sprintf("unknown type %q", msg.Type)}
	}

	sensors := msg.Details
	if sensors == nil {
		sensors = msg.SensorData
	}
	ev.Details = sensors.values()

	ts := msg.Timestamp
	if ts == "" && sensors != nil {
		ts = sensors.Timestamp
	}
	if ts != "" {
		t, err := ParseTimestamp(ts)
		if err != nil {
			return RiskEvent{}, &DecodeError{Reason: "timestamp", Err: err}
		}
		ev.Timestamp = t
	}

	if err := ev.Validate(); err != nil {
		return RiskEvent{}, &DecodeError{Reason: "invalid event", Err: err}
	}
	return ev, nil
}

// Encode renders ev in the canonical wire shape. Both identity keys and the
// sensor_data key are emitted so older consumers keep working.
func Encode(ev RiskEvent) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	msg := wireMessage{
		Type:               string(ev.Kind),
		WorkerID:           ev.WorkerID,
		UserID:             ev.WorkerID,
		UserName:           ev.UserName,
		RiskLevel:          string(ev.RiskLevel),
		PersonalizedAdvice: ev.PersonalizedAdvice,
		WorkerProfile:      ev.WorkerProfile,
		Alert:              ev.AlertText,
	}
	if !ev.Timestamp.IsZero() {
		msg.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if !ev.Details.Empty() {
		d := ev.Details
		msg.SensorData = &wireSensors{
			Temperature: d.Temperature,
			Humidity:    d.Humidity,
			CO:          d.CO,
			VOC:         d.VOC,
			PM1:         d.PM1,
			PM25:        d.PM25,
			PM10:        d.PM10,
		}
	}
	return json.Marshal(msg)
}
