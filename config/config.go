// ABOUTME: Client configuration loaded from TARSY_* environment variables.
// ABOUTME: An optional YAML file tunes reconnect and reveal pacing beyond the env surface.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the dashboard clients need to reach a backend.
type Config struct {
	BackendURL string // Backend base URL (TARSY_BACKEND_URL, default: http://localhost:8000)
	UserID     string // Dashboard channel identity (TARSY_USER_ID, default: dashboard-user)
	LegacyWS   bool   // Use per-alert /ws/{alertId} sockets (TARSY_LEGACY_WS, default: false)
	Tuning     Tuning
}

// Tuning carries the knobs most installs never touch. Loaded from the YAML
// file named by TARSY_CONFIG when present.
type Tuning struct {
	ConnectTimeout    Duration `yaml:"connect_timeout"`
	PingInterval      Duration `yaml:"ping_interval"`
	ReconnectAttempts int      `yaml:"reconnect_attempts"`
	ReconnectBase     Duration `yaml:"reconnect_base"`
	ReconnectMax      Duration `yaml:"reconnect_max"`
	ResolveAttempts   int      `yaml:"resolve_attempts"`
	ResolveBase       Duration `yaml:"resolve_base"`
	RequestTimeout    Duration `yaml:"request_timeout"`
	TypewriterRate    float64  `yaml:"typewriter_rate"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// FromEnv loads configuration from TARSY_* environment variables with
// sensible defaults, then overlays the YAML tuning file if TARSY_CONFIG
// names one.
func FromEnv() (*Config, error) {
	cfg := &Config{
		BackendURL: envOrDefault("TARSY_BACKEND_URL", "http://localhost:8000"),
		UserID:     envOrDefault("TARSY_USER_ID", "dashboard-user"),
	}

	if v := os.Getenv("TARSY_LEGACY_WS"); v == "true" || v == "1" || v == "yes" {
		cfg.LegacyWS = true
	}

	if path := os.Getenv("TARSY_CONFIG"); path != "" {
		tuning, err := loadTuning(path)
		if err != nil {
			return nil, err
		}
		cfg.Tuning = *tuning
	}

	return cfg, nil
}

// loadTuning reads the YAML tuning file. A missing file named explicitly by
// TARSY_CONFIG is an error; zero-value fields mean "use the built-in default".
func loadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tuning file: %w", err)
	}
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing tuning file %s: %w", path, err)
	}
	if t.ReconnectAttempts < 0 || t.ResolveAttempts < 0 {
		return nil, fmt.Errorf("tuning file %s: attempt counts must be non-negative", path)
	}
	return &t, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
