package utils

import (
	"math"
	"testing"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

func ptr(v float64) *float64 { return &v }

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   *float64
		want *float64
	}{
		{"nil", nil, nil},
		{"sentinel", ptr(-999), nil},
		{"nan", ptr(math.NaN()), nil},
		{"negative temperature", ptr(-12.5), ptr(-12.5)},
		{"plain", ptr(35), ptr(35)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeValue(tt.in)
			if !ValuesEqual(got, tt.want, 0) {
				t.Fatalf("NormalizeValue() = %s, want %s", ValuePtrString(got), ValuePtrString(tt.want))
			}
			if got != nil && got == tt.in {
				t.Fatal("NormalizeValue should copy the value")
			}
		})
	}
}

func TestNormalizeValues(t *testing.T) {
	got := NormalizeValues(telemetry.SensorValues{PM25: ptr(-999), CO: ptr(4)})
	if got.PM25 != nil || got.CO == nil || *got.CO != 4 {
		t.Fatalf("NormalizeValues() = %+v", got)
	}
}

func TestChanged(t *testing.T) {
	base := telemetry.SensorValues{PM25: ptr(10), CO: ptr(2)}
	if Changed(base, telemetry.SensorValues{PM25: ptr(10.005), CO: ptr(2)}, 0.01) {
		t.Fatal("change within epsilon reported")
	}
	if !Changed(base, telemetry.SensorValues{PM25: ptr(10.5), CO: ptr(2)}, 0.01) {
		t.Fatal("change beyond epsilon missed")
	}
	if !Changed(base, telemetry.SensorValues{PM25: ptr(10)}, 0.01) {
		t.Fatal("disappearing metric missed")
	}
}

func TestFormatValues(t *testing.T) {
	if got := FormatValues(telemetry.SensorValues{}); got != "-" {
		t.Fatalf("FormatValues(empty) = %q", got)
	}
	got := FormatValues(telemetry.SensorValues{CO: ptr(4), PM25: ptr(80)})
	if got != "pm25=80.000 co=4.000" {
		t.Fatalf("FormatValues() = %q", got)
	}
}
