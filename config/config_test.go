// ABOUTME: Tests for env-based configuration, the YAML tuning overlay, and the .env loader.
// ABOUTME: Uses t.Setenv and t.TempDir so test state never leaks.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("TARSY_BACKEND_URL", "")
	t.Setenv("TARSY_USER_ID", "")
	t.Setenv("TARSY_LEGACY_WS", "")
	t.Setenv("TARSY_CONFIG", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.BackendURL != "http://localhost:8000" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.UserID != "dashboard-user" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if cfg.LegacyWS {
		t.Error("LegacyWS = true, want false by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TARSY_BACKEND_URL", "https://tarsy.example.com")
	t.Setenv("TARSY_USER_ID", "oncall-7")
	t.Setenv("TARSY_LEGACY_WS", "yes")
	t.Setenv("TARSY_CONFIG", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.BackendURL != "https://tarsy.example.com" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.UserID != "oncall-7" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if !cfg.LegacyWS {
		t.Error("LegacyWS = false, want true")
	}
}

func TestTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `
connect_timeout: 2s
reconnect_attempts: 8
reconnect_base: 250ms
typewriter_rate: 240
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TARSY_CONFIG", path)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Tuning.ConnectTimeout.Std() != 2*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.Tuning.ConnectTimeout)
	}
	if cfg.Tuning.ReconnectAttempts != 8 {
		t.Errorf("ReconnectAttempts = %d", cfg.Tuning.ReconnectAttempts)
	}
	if cfg.Tuning.ReconnectBase.Std() != 250*time.Millisecond {
		t.Errorf("ReconnectBase = %v", cfg.Tuning.ReconnectBase)
	}
	if cfg.Tuning.TypewriterRate != 240 {
		t.Errorf("TypewriterRate = %v", cfg.Tuning.TypewriterRate)
	}
	// Unset fields stay zero so callers fall back to built-in defaults.
	if cfg.Tuning.PingInterval != 0 {
		t.Errorf("PingInterval = %v, want 0", cfg.Tuning.PingInterval)
	}
}

func TestTuningFileMissing(t *testing.T) {
	t.Setenv("TARSY_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := FromEnv(); err == nil {
		t.Error("want error for explicitly named missing tuning file")
	}
}

func TestTuningFileRejectsNegativeAttempts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("reconnect_attempts: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TARSY_CONFIG", path)
	if _, err := FromEnv(); err == nil {
		t.Error("want error for negative attempt count")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `
# dashboard defaults
TARSY_BACKEND_URL=http://stub:9000
export TARSY_USER_ID="quoted-user"
TARSY_ALREADY_SET=from-file

malformed line without equals
=novalue
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TARSY_ALREADY_SET", "from-env")
	t.Setenv("TARSY_BACKEND_URL", "")
	os.Unsetenv("TARSY_BACKEND_URL")
	t.Setenv("TARSY_USER_ID", "")
	os.Unsetenv("TARSY_USER_ID")

	applied, err := LoadDotEnv(path)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %v, want 2 keys", applied)
	}
	if got := os.Getenv("TARSY_BACKEND_URL"); got != "http://stub:9000" {
		t.Errorf("TARSY_BACKEND_URL = %q", got)
	}
	if got := os.Getenv("TARSY_USER_ID"); got != "quoted-user" {
		t.Errorf("TARSY_USER_ID = %q", got)
	}
	if got := os.Getenv("TARSY_ALREADY_SET"); got != "from-env" {
		t.Errorf("TARSY_ALREADY_SET = %q, want env value preserved", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	applied, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Errorf("LoadDotEnv on missing file: %v", err)
	}
	if applied != nil {
		t.Errorf("applied = %v, want nil", applied)
	}
}
