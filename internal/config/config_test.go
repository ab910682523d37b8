package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Server.Port != 8765 {
		t.Errorf("server.port = %d, want 8765", cfg.Server.Port)
	}
	if cfg.Server.ChunkSize != 20000 {
		t.Errorf("server.chunk_size = %d, want 20000", cfg.Server.ChunkSize)
	}
	if cfg.Server.LaunchTimeoutSec != 600 {
		t.Errorf("server.launch_timeout_sec = %d, want 600", cfg.Server.LaunchTimeoutSec)
	}
	if cfg.Server.HandoffGraceSec != 3 {
		t.Errorf("server.handoff_grace_sec = %d, want 3", cfg.Server.HandoffGraceSec)
	}
	if cfg.Data.ContentDir != "embeddings" {
		t.Errorf("data.content_dir = %q", cfg.Data.ContentDir)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := Config{Server: ServerConfig{Port: 9000, ChunkSize: 500}}
	cfg.ApplyDefaults()

	if cfg.Server.Port != 9000 {
		t.Errorf("explicit port overwritten: %d", cfg.Server.Port)
	}
	if cfg.Server.ChunkSize != 500 {
		t.Errorf("explicit chunk size overwritten: %d", cfg.Server.ChunkSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"admin port collides", func(c *Config) { c.Admin.Port = c.Server.Port }, true},
		{"admin disabled", func(c *Config) { c.Admin.Port = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SEMDEX_TEST_VAR", "hello")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "value: ${SEMDEX_TEST_VAR}", "value: hello"},
		{"unset variable", "value: ${SEMDEX_UNSET_VAR}", "value: "},
		{"default used", "value: ${SEMDEX_UNSET_VAR:-fallback}", "value: fallback"},
		{"default ignored when set", "value: ${SEMDEX_TEST_VAR:-fallback}", "value: hello"},
		{"no variables", "value: plain", "value: plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(expandEnvVars([]byte(tt.in))); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
