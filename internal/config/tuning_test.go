package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetRemovalRate() != 20.0 {
		t.Errorf("GetRemovalRate() = %f, want 20", cfg.GetRemovalRate())
	}
	if cfg.GetUndrillableHardnessThreshold() != 200 {
		t.Errorf("GetUndrillableHardnessThreshold() = %d, want 200", cfg.GetUndrillableHardnessThreshold())
	}
	if cfg.GetMaxForceMagnitude() != 8.0 {
		t.Errorf("GetMaxForceMagnitude() = %f, want 8", cfg.GetMaxForceMagnitude())
	}
	if cfg.GetForceLaw() != "linear" {
		t.Errorf("GetForceLaw() = %q, want linear", cfg.GetForceLaw())
	}
	if cfg.GetToolShape() != "sphere" {
		t.Errorf("GetToolShape() = %q, want sphere", cfg.GetToolShape())
	}
	if cfg.GetCyclePeriod() != time.Millisecond {
		t.Errorf("GetCyclePeriod() = %v, want 1ms", cfg.GetCyclePeriod())
	}
	if cfg.GetRecordEvery() != 10 {
		t.Errorf("GetRecordEvery() = %d, want 10", cfg.GetRecordEvery())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestMustLoadDefaultConfigMatchesGetters(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	// The defaults file and the getter fallbacks must agree.
	if cfg.GetRemovalRate() != empty.GetRemovalRate() {
		t.Errorf("removal_rate: file %v, getter %v", cfg.GetRemovalRate(), empty.GetRemovalRate())
	}
	if cfg.GetUndrillableHardnessThreshold() != empty.GetUndrillableHardnessThreshold() {
		t.Errorf("undrillable_hardness_threshold: file %v, getter %v",
			cfg.GetUndrillableHardnessThreshold(), empty.GetUndrillableHardnessThreshold())
	}
	if cfg.GetMaxForceMagnitude() != empty.GetMaxForceMagnitude() {
		t.Errorf("max_force_magnitude: file %v, getter %v", cfg.GetMaxForceMagnitude(), empty.GetMaxForceMagnitude())
	}
	if cfg.GetStiffness() != empty.GetStiffness() || cfg.GetBlockedStiffness() != empty.GetBlockedStiffness() {
		t.Errorf("stiffness mismatch between defaults file and getters")
	}
	if cfg.GetToolRadius() != empty.GetToolRadius() || cfg.GetToolLength() != empty.GetToolLength() {
		t.Errorf("tool dimensions mismatch between defaults file and getters")
	}
	if cfg.GetCyclePeriod() != empty.GetCyclePeriod() {
		t.Errorf("cycle_period: file %v, getter %v", cfg.GetCyclePeriod(), empty.GetCyclePeriod())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "removal_rate": 1.5,
  "undrillable_hardness_threshold": 120,
  "max_force_magnitude": 3.3,
  "force_law": "Hertz",
  "tool_shape": "capsule",
  "cycle_period": "500us"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetRemovalRate() != 1.5 {
		t.Errorf("Expected removal_rate 1.5, got %v", cfg.GetRemovalRate())
	}
	if cfg.GetUndrillableHardnessThreshold() != 120 {
		t.Errorf("Expected threshold 120, got %v", cfg.GetUndrillableHardnessThreshold())
	}
	if cfg.GetForceLaw() != "hertz" {
		t.Errorf("Expected force_law hertz, got %q", cfg.GetForceLaw())
	}
	if cfg.GetToolShape() != "capsule" {
		t.Errorf("Expected tool_shape capsule, got %q", cfg.GetToolShape())
	}
	if cfg.GetCyclePeriod() != 500*time.Microsecond {
		t.Errorf("Expected cycle_period 500us, got %v", cfg.GetCyclePeriod())
	}
	// Omitted fields keep their defaults.
	if cfg.GetStiffness() != 1500.0 {
		t.Errorf("Expected default stiffness, got %v", cfg.GetStiffness())
	}
}

func TestLoadTuningConfig_Rejects(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("cfg.yaml", `{}`), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "stat"},
		{"bad json", write("bad.json", `{"removal_rate":`), "parse"},
		{"negative rate", write("neg.json", `{"removal_rate": -1}`), "removal_rate"},
		{"threshold range", write("thr.json", `{"undrillable_hardness_threshold": 300}`), "undrillable_hardness_threshold"},
		{"zero max force", write("force.json", `{"max_force_magnitude": 0}`), "max_force_magnitude"},
		{"soft blocked spring", write("stiff.json", `{"stiffness": 10, "blocked_stiffness": 5}`), "blocked_stiffness"},
		{"unknown law", write("law.json", `{"force_law": "cubic"}`), "force_law"},
		{"unknown shape", write("shape.json", `{"tool_shape": "cone"}`), "tool_shape"},
		{"bad period", write("period.json", `{"cycle_period": "fast"}`), "cycle_period"},
		{"negative period", write("negperiod.json", `{"cycle_period": "-1ms"}`), "cycle_period"},
		{"record every", write("rec.json", `{"record_every": 0}`), "record_every"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(p, big, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(p); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestGetCyclePeriod_FallsBackOnParseError(t *testing.T) {
	cfg := &TuningConfig{CyclePeriod: ptrString("nonsense")}
	if cfg.GetCyclePeriod() != time.Millisecond {
		t.Errorf("expected fallback 1ms, got %v", cfg.GetCyclePeriod())
	}
	cfg = &TuningConfig{RemovalRate: ptrFloat64(4), RecordEvery: ptrInt(3)}
	if cfg.GetRemovalRate() != 4 || cfg.GetRecordEvery() != 3 {
		t.Errorf("pointer fields not honoured: %+v", cfg)
	}
}
