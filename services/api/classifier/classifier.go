// Package classifier assigns risk levels and personalised advice to readings
// using per-worker adaptive thresholds and a fuzzy score.
package classifier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// Thresholds are the per-worker exceedance limits.
type Thresholds struct {
	CO   float64 `json:"co"`
	PM25 float64 `json:"pm25"`
	VOC  float64 `json:"voc"`
}

// DefaultThresholds apply to a healthy worker in a normal environment.
var DefaultThresholds = Thresholds{CO: 35, PM25: 35, VOC: 0.5}

// AdaptiveThresholds tightens the defaults for age, health condition and
// work environment.
func AdaptiveThresholds(w telemetry.Worker) Thresholds {
	t := DefaultThresholds

	if age(w) >= 60 {
		t.CO = 25
	}

	health := strings.ToLower(w.HealthCondition)
	if strings.Contains(health, "asthma") || strings.Contains(health, "respiratory") {
		t.PM25 = 20
		t.VOC = 0.3
	}
	if strings.Contains(health, "heart") || strings.Contains(health, "cardio") {
		t.CO = min(t.CO, 25)
		t.PM25 = min(t.PM25, 25)
	}

	env := strings.ToLower(w.WorkEnvironment)
	if strings.Contains(env, "welding") || strings.Contains(env, "chemical") {
		t.CO = min(t.CO, 25)
		t.VOC = min(t.VOC, 0.3)
	}
	return t
}

// Flags lists every exceeded threshold as "NAME value > limit".
func Flags(r telemetry.Reading, t Thresholds) []string {
	flags := make([]string, 0, 3)
	if r.PM25 > t.PM25 {
		flags = append(flags, "PM2.5 "+num(r.PM25)+" > "+num(t.PM25))
	}
	if r.CO > t.CO {
		flags = append(flags, "CO "+num(r.CO)+" > "+num(t.CO))
	}
	if r.VOC > t.VOC {
		flags = append(flags, "VOC "+num(r.VOC)+" > "+num(t.VOC))
	}
	return flags
}

// FuzzyRisk scores particulate, CO and VOC levels into Low, Moderate or High.
// Asthmatic workers score two points higher, so air that is Moderate for
// others can already be High, and therefore Unsafe, for them.
func FuzzyRisk(pm25, co, voc float64, healthCondition string) telemetry.RiskLevel {
	score := 0

	switch {
	case pm25 > 35:
		score += 2
	case pm25 > 20:
		score++
	}

	switch {
	case co > 9:
		score += 2
	case co > 4:
		score++
	}

	switch {
	case voc > 0.6:
		score += 2
	case voc > 0.3:
		score++
	}

	if strings.EqualFold(healthCondition, "asthma") {
		score += 2
	}

	switch {
	case score >= 6:
		return telemetry.RiskHigh
	case score >= 3:
		return telemetry.RiskModerate
	}
	return telemetry.RiskLow
}

// Measures builds the personalised advice for w given the raised flags.
func Measures(w telemetry.Worker, flags []string) string {
	measures := make([]string, 0, 6)

	if anyContains(flags, "PM2.5") {
		measures = append(measures, "Wear a protective mask immediately.")
	}
	if anyContains(flags, "CO") {
		measures = append(measures, "Evacuate the area and notify your supervisor.")
	}
	if anyContains(flags, "VOC") {
		measures = append(measures, "Move to a ventilated area immediately.")
	}

	if age(w) >= 60 {
		measures = append(measures, "Due to your age, leave the hazardous area immediately.")
	}
	health := strings.ToLower(w.HealthCondition)
	if strings.Contains(health, "asthma") {
		measures = append(measures, "Access fresh air immediately due to your asthma.")
	}
	if strings.Contains(health, "heart") {
		measures = append(measures, "Stop work and seek medical attention if needed.")
	}

	if len(measures) == 0 {
		return "Stay cautious."
	}
	return strings.Join(measures, " ")
}

// Result is the outcome of classifying one reading.
type Result struct {
	RiskLevel  telemetry.RiskLevel `json:"risk_level"`
	FuzzyRisk  telemetry.RiskLevel `json:"fuzzy_risk"`
	Thresholds Thresholds          `json:"thresholds"`
	Flags      []string            `json:"flags"`
	Advice     string              `json:"personalized_advice"`
	Alert      string              `json:"alert"`
}

// Unsafe reports whether the reading crossed into the admin feed.
func (r Result) Unsafe() bool {
	return r.RiskLevel == telemetry.RiskUnsafe
}

// Classify evaluates r for worker w. Readings scoring High are Unsafe,
// everything else is Normal.
func Classify(w telemetry.Worker, r telemetry.Reading) Result {
	thresholds := AdaptiveThresholds(w)
	flags := Flags(r, thresholds)
	fuzzy := FuzzyRisk(r.PM25, r.CO, r.VOC, w.HealthCondition)

	level := telemetry.RiskNormal
	if fuzzy == telemetry.RiskHigh {
		level = telemetry.RiskUnsafe
	}

	issues := strings.Join(flags, ", ")
	return Result{
		RiskLevel:  level,
		FuzzyRisk:  fuzzy,
		Thresholds: thresholds,
		Flags:      flags,
		Advice:     Measures(w, flags),
		Alert:      fmt.Sprintf("Alert for %s: Risk - %s, Fuzzy: %s, Issues: %s", r.WorkerID, level, fuzzy, issues),
	}
}

// Event shapes the wire event for r. Unsafe results become alerts, the rest
// data frames that still carry their level.
func (res Result) Event(w telemetry.Worker, r telemetry.Reading) telemetry.RiskEvent {
	kind := telemetry.KindData
	if res.Unsafe() {
		kind = telemetry.KindAlert
	}
	return telemetry.RiskEvent{
		Kind:               kind,
		WorkerID:           r.WorkerID,
		RiskLevel:          res.RiskLevel,
		Timestamp:          r.Timestamp,
		Details:            telemetry.SensorValuesFromReading(r),
		PersonalizedAdvice: res.Advice,
		WorkerProfile:      w.Profile(),
		UserName:           w.Name,
		AlertText:          res.Alert,
	}
}

func age(w telemetry.Worker) int {
	if w.Age == nil {
		return 0
	}
	return *w.Age
}

func anyContains(items []string, sub string) bool {
	for _, item := range items {
		if strings.Contains(item, sub) {
			return true
		}
	}
	return false
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
