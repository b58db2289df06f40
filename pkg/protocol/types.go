package protocol

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/Custodia/pkg/consts"
	"github.com/turtacn/Custodia/pkg/errors"
)

// Config represents the root configuration of a Custodia run.
type Config struct {
	Version       string              `yaml:"version" toml:"version"`
	Service       ServiceConfig       `yaml:"service" toml:"service"`
	Supervision   SupervisionConfig   `yaml:"supervision" toml:"supervision"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

type ServiceConfig struct {
	Name    string   `yaml:"name" toml:"name"`
	Command []string `yaml:"command" toml:"command"` // Argument vector, command[0] is the executable
	Env     []string `yaml:"env" toml:"env"`
}

// SupervisionConfig is the configuration surface of the supervision engine.
// It is immutable once handed to an engine instance.
type SupervisionConfig struct {
	Timeout            int    `yaml:"timeout" toml:"timeout"`                             // seconds, 0 = unbounded
	DelayRandom        int    `yaml:"delay_random" toml:"delay_random"`                   // seconds, exclusive upper bound
	ErrorExec          string `yaml:"error_exec" toml:"error_exec"`                       // shell command template
	ErrorExecExitCodes string `yaml:"error_exec_exit_codes" toml:"error_exec_exit_codes"` // comma-separated, default "1"
}

type ObservabilityConfig struct {
	MetricsPort string `yaml:"metrics_port" toml:"metrics_port"`
	LogLevel    string `yaml:"log_level" toml:"log_level"`
}

// TimeoutDuration returns the configured timeout, or 0 when unbounded.
func (sc SupervisionConfig) TimeoutDuration() time.Duration {
	return time.Duration(sc.Timeout) * time.Second
}

// DelayDuration returns the configured maximum random startup delay.
func (sc SupervisionConfig) DelayDuration() time.Duration {
	return time.Duration(sc.DelayRandom) * time.Second
}

// TriggerCodes parses the error_exec_exit_codes list. An empty value yields
// the default trigger set. The timeout sentinel is an acceptable member.
func (sc SupervisionConfig) TriggerCodes() ([]int, error) {
	raw := strings.TrimSpace(sc.ErrorExecExitCodes)
	if raw == "" {
		return append([]int(nil), consts.DefaultTriggerCodes...), nil
	}

	var codes []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "ParseTriggerCodes",
				fmt.Sprintf("invalid exit code %q", part), err)
		}
		codes = append(codes, n)
	}
	if len(codes) == 0 {
		return append([]int(nil), consts.DefaultTriggerCodes...), nil
	}
	return codes, nil
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	if c.Supervision.Timeout < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "Validate", "timeout must be >= 0", nil)
	}
	if c.Supervision.DelayRandom < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "Validate", "delay_random must be >= 0", nil)
	}
	if _, err := c.Supervision.TriggerCodes(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads and parses a config file. The decoder is chosen by file
// extension: .toml uses TOML, everything else is treated as YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "LoadConfig", "reading config file", err)
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "LoadConfig", "parsing config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
