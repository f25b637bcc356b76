package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("cadastre-test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telemetry.ServiceName != "cadastre-test" {
		t.Errorf("service name = %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Survey.CaptureRadius != 0.05 {
		t.Errorf("capture radius = %v, want 0.05", cfg.Survey.CaptureRadius)
	}
	if cfg.Survey.AdjustmentTolerance != 0.001 {
		t.Errorf("adjustment tolerance = %v, want 0.001", cfg.Survey.AdjustmentTolerance)
	}
	if cfg.Temporal.TaskQueue != "plan-archive" {
		t.Errorf("task queue = %q", cfg.Temporal.TaskQueue)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CADASTRE_SURVEY_ADJUSTMENT_TOLERANCE", "0.002")
	t.Setenv("CADASTRE_SERVER_PORT", "9090")

	cfg, err := Load("cadastre-test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Survey.AdjustmentTolerance != 0.002 {
		t.Errorf("adjustment tolerance = %v, want 0.002", cfg.Survey.AdjustmentTolerance)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
}

func TestValidate_Aggregates(t *testing.T) {
	c := &Config{
		Server: ServerConfig{Port: 0, ReadTimeout: 1, WriteTimeout: 1},
		Survey: SurveyConfig{AdjustmentTolerance: 0, CaptureRadius: -1},
	}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "database.host", "survey.adjustment_tolerance", "survey.capture_radius"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}
