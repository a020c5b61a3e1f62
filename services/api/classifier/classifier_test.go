package classifier

import (
	"reflect"
	"testing"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

func worker(age int, health, env string) telemetry.Worker {
	return telemetry.Worker{WorkerID: "w1", Name: "Ana", Age: &age, HealthCondition: health, WorkEnvironment: env}
}

func TestAdaptiveThresholds(t *testing.T) {
	tests := []struct {
		name string
		w    telemetry.Worker
		want Thresholds
	}{
		{"healthy", worker(30, "Healthy", "Normal"), Thresholds{CO: 35, PM25: 35, VOC: 0.5}},
		{"senior", worker(64, "Healthy", "Normal"), Thresholds{CO: 25, PM25: 35, VOC: 0.5}},
		{"asthma", worker(30, "Asthma", "Normal"), Thresholds{CO: 35, PM25: 20, VOC: 0.3}},
		{"heart", worker(30, "Heart disease", "Normal"), Thresholds{CO: 25, PM25: 25, VOC: 0.5}},
		{"asthma and cardio", worker(30, "asthma, cardio", "Normal"), Thresholds{CO: 25, PM25: 20, VOC: 0.3}},
		{"welding", worker(30, "Healthy", "Welding bay"), Thresholds{CO: 25, PM25: 35, VOC: 0.3}},
		{"unknown age", telemetry.Worker{HealthCondition: "Healthy"}, DefaultThresholds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AdaptiveThresholds(tt.w); got != tt.want {
				t.Fatalf("AdaptiveThresholds() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFlags(t *testing.T) {
	r := telemetry.Reading{PM25: 80, CO: 12, VOC: 0.2}
	got := Flags(r, Thresholds{CO: 10, PM25: 35, VOC: 0.5})
	want := []string{"PM2.5 80 > 35", "CO 12 > 10"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flags() = %v, want %v", got, want)
	}
}

func TestFuzzyRisk(t *testing.T) {
	tests := []struct {
		pm25, co, voc float64
		health        string
		want          telemetry.RiskLevel
	}{
		{0, 0, 0, "", telemetry.RiskLow},
		{21, 5, 0.31, "", telemetry.RiskModerate},
		{36, 10, 0.61, "", telemetry.RiskHigh},
		{36, 10, 0, "", telemetry.RiskModerate},
		{36, 10, 0, "Asthma", telemetry.RiskHigh},
		{35, 9, 0.6, "", telemetry.RiskModerate},
	}
	for _, tt := range tests {
		if got := FuzzyRisk(tt.pm25, tt.co, tt.voc, tt.health); got != tt.want {
			t.Errorf("FuzzyRisk(%v, %v, %v, %q) = %s, want %s", tt.pm25, tt.co, tt.voc, tt.health, got, tt.want)
		}
	}
}

func TestMeasures(t *testing.T) {
	if got := Measures(worker(30, "Healthy", "Normal"), nil); got != "Stay cautious." {
		t.Fatalf("Measures() = %q", got)
	}

	got := Measures(worker(65, "Asthma", "Normal"), []string{"PM2.5 40 > 20", "VOC 1 > 0.3"})
	want := "Wear a protective mask immediately. Move to a ventilated area immediately. " +
		"Due to your age, leave the hazardous area immediately. Access fresh air immediately due to your asthma."
	if got != want {
		t.Fatalf("Measures() = %q, want %q", got, want)
	}
}

func TestClassifyUnsafe(t *testing.T) {
	w := worker(30, "Healthy", "Normal")
	r := telemetry.Reading{WorkerID: "w1", PM25: 80, CO: 40, VOC: 0.7}

	res := Classify(w, r)
	if !res.Unsafe() || res.FuzzyRisk != telemetry.RiskHigh {
		t.Fatalf("Classify() = %+v", res)
	}
	if len(res.Flags) != 3 {
		t.Fatalf("flags = %v", res.Flags)
	}

	ev := res.Event(w, r)
	if ev.Kind != telemetry.KindAlert || ev.RiskLevel != telemetry.RiskUnsafe || ev.UserName != "Ana" {
		t.Fatalf("Event() = %+v", ev)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("event invalid: %v", err)
	}
}

func TestClassifyNormal(t *testing.T) {
	w := worker(30, "Healthy", "Normal")
	r := telemetry.Reading{WorkerID: "w1", PM25: 10, CO: 1, VOC: 0.1}

	res := Classify(w, r)
	if res.Unsafe() || res.RiskLevel != telemetry.RiskNormal {
		t.Fatalf("Classify() = %+v", res)
	}
	if ev := res.Event(w, r); ev.Kind != telemetry.KindData {
		t.Fatalf("Event().Kind = %s, want data", ev.Kind)
	}
}

func TestAsthmaTipsModerateAirIntoUnsafe(t *testing.T) {
	// pm25 > 35 and co > 9 score 4: Moderate on their own.
	r := telemetry.Reading{WorkerID: "w1", PM25: 36, CO: 10, VOC: 0.1}

	healthy := telemetry.Worker{WorkerID: "w1", HealthCondition: "Healthy"}
	if got := Classify(healthy, r); got.FuzzyRisk != telemetry.RiskModerate || got.Unsafe() {
		t.Fatalf("healthy worker: fuzzy=%s level=%s, want Moderate/Normal", got.FuzzyRisk, got.RiskLevel)
	}

	asthmatic := telemetry.Worker{WorkerID: "w1", HealthCondition: "Asthma"}
	if got := Classify(asthmatic, r); got.FuzzyRisk != telemetry.RiskHigh || !got.Unsafe() {
		t.Fatalf("asthmatic worker: fuzzy=%s level=%s, want High/Unsafe", got.FuzzyRisk, got.RiskLevel)
	}
}
