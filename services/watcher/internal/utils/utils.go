package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

var logOrder = []telemetry.Metric{
	telemetry.MetricPM25,
	telemetry.MetricPM10,
	telemetry.MetricPM1,
	telemetry.MetricCO,
	telemetry.MetricVOC,
	telemetry.MetricTemperature,
	telemetry.MetricHumidity,
}

// NormalizeValue cleans raw sensor values; -999 sentinel -> nil.
func NormalizeValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if *v <= -900 || math.IsNaN(*v) {
		return nil
	}
	val := *v
	return &val
}

// NormalizeValues applies NormalizeValue to every metric.
func NormalizeValues(v telemetry.SensorValues) telemetry.SensorValues {
	return telemetry.SensorValues{
		Temperature: NormalizeValue(v.Temperature),
		Humidity:    NormalizeValue(v.Humidity),
		CO:          NormalizeValue(v.CO),
		VOC:         NormalizeValue(v.VOC),
		PM1:         NormalizeValue(v.PM1),
		PM25:        NormalizeValue(v.PM25),
		PM10:        NormalizeValue(v.PM10),
	}
}

// ValuesEqual compares two optional float values with tolerance.
func ValuesEqual(a, b *float64, epsilon float64) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return math.Abs(*a-*b) <= epsilon
	}
}

// Changed reports whether any metric moved by more than epsilon, appeared or
// disappeared between prev and cur.
func Changed(prev, cur telemetry.SensorValues, epsilon float64) bool {
	pairs := [][2]*float64{
		{prev.Temperature, cur.Temperature},
		{prev.Humidity, cur.Humidity},
		{prev.CO, cur.CO},
		{prev.VOC, cur.VOC},
		{prev.PM1, cur.PM1},
		{prev.PM25, cur.PM25},
		{prev.PM10, cur.PM10},
	}
	for _, p := range pairs {
		if !ValuesEqual(p[0], p[1], epsilon) {
			return true
		}
	}
	return false
}

// ValuePtrString prints pointer values for logging.
func ValuePtrString(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.3f", *v)
}

// FormatValues renders the present metrics as key=value pairs for logging.
func FormatValues(v telemetry.SensorValues) string {
	parts := make([]string, 0, len(logOrder))
	for _, m := range logOrder {
		if val, ok := v.Value(m); ok {
			parts = append(parts, string(m)+"="+ValuePtrString(&val))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
