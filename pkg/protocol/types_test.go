package protocol

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestTriggerCodes_Default(t *testing.T) {
	sc := SupervisionConfig{}
	codes, err := sc.TriggerCodes()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(codes, []int{1}) {
		t.Errorf("Expected default {1}, got %v", codes)
	}
}

func TestTriggerCodes_Custom(t *testing.T) {
	sc := SupervisionConfig{ErrorExecExitCodes: "1, 2,17,-99"}
	codes, err := sc.TriggerCodes()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(codes, []int{1, 2, 17, -99}) {
		t.Errorf("Expected {1 2 17 -99}, got %v", codes)
	}
}

func TestTriggerCodes_Invalid(t *testing.T) {
	sc := SupervisionConfig{ErrorExecExitCodes: "1,two"}
	if _, err := sc.TriggerCodes(); err == nil {
		t.Error("Expected error for non-numeric exit code")
	}
}

func TestSupervisionConfig_Durations(t *testing.T) {
	sc := SupervisionConfig{Timeout: 30, DelayRandom: 5}
	if sc.TimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30s, got %s", sc.TimeoutDuration())
	}
	if sc.DelayDuration() != 5*time.Second {
		t.Errorf("Expected 5s, got %s", sc.DelayDuration())
	}
}

func TestConfig_Validate(t *testing.T) {
	good := &Config{}
	if err := good.Validate(); err != nil {
		t.Errorf("Empty config should validate, got %v", err)
	}

	bad := &Config{Supervision: SupervisionConfig{Timeout: -1}}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for negative timeout")
	}

	badDelay := &Config{Supervision: SupervisionConfig{DelayRandom: -1}}
	if err := badDelay.Validate(); err == nil {
		t.Error("Expected error for negative delay_random")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custodia.yaml")
	data := `
version: "1"
service:
  name: backup
  command: ["/usr/local/bin/backup.sh", "--full"]
supervision:
  timeout: 3600
  delay_random: 300
  error_exec: "logger failed {EXIT}"
  error_exec_exit_codes: "1,2"
observability:
  log_level: warn
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Service.Name != "backup" {
		t.Errorf("Expected service name backup, got %q", cfg.Service.Name)
	}
	if len(cfg.Service.Command) != 2 || cfg.Service.Command[1] != "--full" {
		t.Errorf("Unexpected command %v", cfg.Service.Command)
	}
	if cfg.Supervision.Timeout != 3600 {
		t.Errorf("Expected timeout 3600, got %d", cfg.Supervision.Timeout)
	}
	codes, err := cfg.Supervision.TriggerCodes()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(codes, []int{1, 2}) {
		t.Errorf("Expected {1 2}, got %v", codes)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custodia.toml")
	data := `
version = "1"

[service]
name = "nightly"
command = ["sleep", "1"]

[supervision]
timeout = 60
error_exec = "echo {EXIT}"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Service.Name != "nightly" {
		t.Errorf("Expected service name nightly, got %q", cfg.Service.Name)
	}
	if cfg.Supervision.Timeout != 60 {
		t.Errorf("Expected timeout 60, got %d", cfg.Supervision.Timeout)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("supervision:\n  timeout: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected validation error for negative timeout")
	}
}
