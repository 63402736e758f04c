package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalName    string
		globalConfig  string
		projectName   string
		projectConfig string
		expectTimeout time.Duration
		expectLevel   string
		expectRedis   string
		expectError   bool
	}{
		{
			name:          "No config files - returns defaults",
			expectTimeout: DefaultTimeout,
			expectLevel:   "info",
		},
		{
			name:          "Global only - overrides timeout",
			globalName:    "global.json",
			globalConfig:  `{"execution": {"default_timeout": "5m"}}`,
			expectTimeout: 5 * time.Minute,
			expectLevel:   "info",
		},
		{
			name:          "Project YAML - sets log level and redis",
			projectName:   "project.yaml",
			projectConfig: "log:\n  level: debug\nevents:\n  redis_addr: localhost:6379\n",
			expectTimeout: DefaultTimeout,
			expectLevel:   "debug",
			expectRedis:   "localhost:6379",
		},
		{
			name:          "Project overrides global - project wins",
			globalName:    "global.json",
			globalConfig:  `{"execution": {"default_timeout": "5m"}, "log": {"level": "warn"}}`,
			projectName:   "project.yml",
			projectConfig: "execution:\n  default_timeout: 90s\n",
			expectTimeout: 90 * time.Second,
			expectLevel:   "warn",
		},
		{
			name:         "Invalid value - fails validation",
			globalName:   "global.json",
			globalConfig: `{"log": {"level": "loud"}}`,
			expectError:  true,
		},
		{
			name:         "Invalid duration - fails parsing",
			globalName:   "global.json",
			globalConfig: `{"execution": {"default_timeout": "soon"}}`,
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalName != "" {
				globalPath = filepath.Join(tmpDir, tt.globalName)
				writeFile(t, globalPath, tt.globalConfig)
			}

			projectPath := ""
			if tt.projectName != "" {
				projectPath = filepath.Join(tmpDir, tt.projectName)
				writeFile(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := cfg.Execution.DefaultTimeout.Std(); got != tt.expectTimeout {
				t.Errorf("default timeout = %s, want %s", got, tt.expectTimeout)
			}
			if cfg.Log.Level != tt.expectLevel {
				t.Errorf("log level = %q, want %q", cfg.Log.Level, tt.expectLevel)
			}
			if cfg.Events.RedisAddr != tt.expectRedis {
				t.Errorf("redis addr = %q, want %q", cfg.Events.RedisAddr, tt.expectRedis)
			}
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	writeFile(t, globalPath, "{invalid json")

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}

	if cfg.Breaker.ConsecutiveFailures != 5 {
		t.Errorf("breaker failures = %d, want 5", cfg.Breaker.ConsecutiveFailures)
	}
	if cfg.Events.RedisStream != "taskrunner:events" {
		t.Errorf("redis stream = %q, want taskrunner:events", cfg.Events.RedisStream)
	}
}

func TestLoad_EnvironmentWins(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := filepath.Join(tmpDir, "global.json")
	writeFile(t, globalPath, `{"execution": {"default_timeout": "5m"}}`)

	t.Setenv("TASKRUNNER_DEFAULT_TIMEOUT", "2m")
	t.Setenv("TASKRUNNER_BREAKER_FAILURES", "9")

	cfg, err := Load(globalPath, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Execution.DefaultTimeout.Std(); got != 2*time.Minute {
		t.Errorf("default timeout = %s, want 2m", got)
	}
	if cfg.Breaker.ConsecutiveFailures != 9 {
		t.Errorf("breaker failures = %d, want 9", cfg.Breaker.ConsecutiveFailures)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(cfg, map[string]string{
		"TASKRUNNER_LOG_LEVEL":    "debug",
		"TASKRUNNER_METRICS_ADDR": ":9100",
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("metrics addr = %q, want :9100", cfg.Metrics.Addr)
	}
	if cfg.Events.MinSeverity != "info" {
		t.Errorf("unset variables must keep defaults, got min severity %q", cfg.Events.MinSeverity)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero timeout", mutate: func(c *Config) { c.Execution.DefaultTimeout = 0 }, wantErr: true},
		{name: "unknown severity", mutate: func(c *Config) { c.Events.MinSeverity = "chatty" }, wantErr: true},
		{name: "no breaker threshold", mutate: func(c *Config) { c.Breaker.ConsecutiveFailures = 0 }, wantErr: true},
		{name: "upper-case level", mutate: func(c *Config) { c.Log.Level = "DEBUG" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
