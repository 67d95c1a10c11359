package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Preview: PreviewConfig{
			MaxBytes:      1 << 20,
			Debounce:      100 * time.Millisecond,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			SessionTTL:    time.Minute,
			MaxSessions:   10,
		},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100, PreviewLimit: 10},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Preview.MaxBytes != 1<<30 {
		t.Errorf("Preview.MaxBytes = %d, want %d", cfg.Preview.MaxBytes, 1<<30)
	}
	if cfg.Preview.Debounce != 100*time.Millisecond {
		t.Errorf("Preview.Debounce = %v, want 100ms", cfg.Preview.Debounce)
	}
	if cfg.Preview.SessionTTL != 30*time.Minute {
		t.Errorf("Preview.SessionTTL = %v, want 30m", cfg.Preview.SessionTTL)
	}
	if cfg.Rate.RequestsPerMinute != 100 {
		t.Errorf("Rate.RequestsPerMinute = %d, want %d", cfg.Rate.RequestsPerMinute, 100)
	}
	if cfg.Security.RequireAPIKey {
		t.Error("Security.RequireAPIKey = true, want false")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PREVIEW_MAX_CONCURRENT", "3")
	t.Setenv("PREVIEW_MAX_BYTES", "2048")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Preview.MaxConcurrent != 3 {
		t.Errorf("Preview.MaxConcurrent = %d, want %d", cfg.Preview.MaxConcurrent, 3)
	}
	if cfg.Preview.MaxBytes != 2048 {
		t.Errorf("Preview.MaxBytes = %d, want %d", cfg.Preview.MaxBytes, 2048)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("ADD_DATA_MAX_BYTES", "4096")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Preview.MaxBytes != 4096 {
		t.Errorf("Preview.MaxBytes = %d, want %d", cfg.Preview.MaxBytes, 4096)
	}
}

func TestLoad_Duration(t *testing.T) {
	t.Setenv("SERVER_READ_TIMEOUT", "45s")
	t.Setenv("PREVIEW_MAX_WAIT_TIME", "1m30s")
	t.Setenv("PREVIEW_DEBOUNCE", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 45*time.Second)
	}
	if cfg.Preview.MaxWaitTime != 90*time.Second {
		t.Errorf("Preview.MaxWaitTime = %v, want %v", cfg.Preview.MaxWaitTime, 90*time.Second)
	}
	if cfg.Preview.Debounce != 250*time.Millisecond {
		t.Errorf("Preview.Debounce = %v, want 250ms", cfg.Preview.Debounce)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("PREVIEW_DEBOUNCE", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "PREVIEW_DEBOUNCE") {
		t.Errorf("error should mention PREVIEW_DEBOUNCE: %v", err)
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if !reflect.DeepEqual(cfg.Security.TrustedProxies, expected) {
		t.Errorf("TrustedProxies = %v, want %v", cfg.Security.TrustedProxies, expected)
	}
}

func TestLoad_RequireAPIKeyWithoutKeys(t *testing.T) {
	t.Setenv("REQUIRE_API_KEY", "true")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when API keys are required but missing")
	}
	if !strings.Contains(err.Error(), "API_KEYS") {
		t.Errorf("error should mention API_KEYS: %v", err)
	}
}

func TestLoadStruct_Required(t *testing.T) {
	var s struct {
		Token string `env:"CSVPREVIEW_TEST_TOKEN" required:"true"`
	}

	if err := loadStruct(reflect.ValueOf(&s).Elem()); err == nil {
		t.Fatal("loadStruct() expected error for missing required variable")
	}

	t.Setenv("CSVPREVIEW_TEST_TOKEN", "abc")
	if err := loadStruct(reflect.ValueOf(&s).Elem()); err != nil {
		t.Fatalf("loadStruct() error = %v", err)
	}
	if s.Token != "abc" {
		t.Errorf("Token = %q, want %q", s.Token, "abc")
	}
}

func TestLoadEnv_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SERVER_PORT=7070\nLOG_FORMAT=json\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// Register cleanup for the variables the file sets.
	t.Setenv("SERVER_PORT", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, loaded, err := LoadEnv(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if !loaded {
		t.Error("loaded = false, want true")
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"zero max bytes", func(c *Config) { c.Preview.MaxBytes = 0 }, "PREVIEW_MAX_BYTES"},
		{"negative debounce", func(c *Config) { c.Preview.Debounce = -time.Second }, "PREVIEW_DEBOUNCE"},
		{"zero session ttl", func(c *Config) { c.Preview.SessionTTL = 0 }, "PREVIEW_SESSION_TTL"},
		{"zero preview limit", func(c *Config) { c.Rate.PreviewLimit = 0 }, "RATE_LIMIT_PREVIEW"},
		{"disabled rate limit ignores limits", func(c *Config) {
			c.Rate = RateLimitConfig{Enabled: false}
		}, ""},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %s: %v", tt.wantErr, err)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"::1", 443, "[::1]:443"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigString_MasksAPIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Security.APIKeys = []string{"super-secret-key"}

	str := cfg.String()
	if strings.Contains(str, "super-secret-key") {
		t.Error("String() should mask API keys")
	}
	if !strings.Contains(str, "MASKED") {
		t.Error("String() should contain MASKED placeholder")
	}
}
