package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the semdex daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Admin     AdminConfig     `yaml:"admin"`
	Data      DataConfig      `yaml:"data"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the JSON-RPC service settings. Port is the well-known
// port shared by the launch protocol and the long-lived service.
type ServerConfig struct {
	Port              int `yaml:"port"`
	ChunkSize         int `yaml:"chunk_size"`
	LaunchTimeoutSec  int `yaml:"launch_timeout_sec"`
	HandoffGraceSec   int `yaml:"handoff_grace_sec"`
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// AdminConfig holds the admin HTTP surface settings (metrics, health).
// Port 0 disables it.
type AdminConfig struct {
	Port int `yaml:"port"`
}

// DataConfig holds on-disk data locations. Dir is the root that contains the
// primary vector space directory; the other spaces and the posts CSV are
// resolved relative to it via the space metadata.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	ContentDir   string `yaml:"content_dir"`
	ReasoningDir string `yaml:"reasoning_dir"`
	SummaryDir   string `yaml:"summary_dir"`
	TagsFile     string `yaml:"tags_file"`
}

// EmbeddingConfig holds the embedding provider settings (OpenAI-compatible).
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Provider   string `yaml:"provider"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8765
	}
	if c.Server.ChunkSize <= 0 {
		c.Server.ChunkSize = 20000
	}
	if c.Server.LaunchTimeoutSec <= 0 {
		// Heavy initialization can take minutes; see DESIGN.md for the choice.
		c.Server.LaunchTimeoutSec = 600
	}
	if c.Server.HandoffGraceSec <= 0 {
		c.Server.HandoffGraceSec = 3
	}
	if c.Server.RequestTimeoutSec <= 0 {
		c.Server.RequestTimeoutSec = 30
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Data.ContentDir == "" {
		c.Data.ContentDir = "embeddings"
	}
	if c.Data.ReasoningDir == "" {
		c.Data.ReasoningDir = filepath.Join("batch", "reasoning")
	}
	if c.Data.SummaryDir == "" {
		c.Data.SummaryDir = filepath.Join("batch", "summary")
	}
	if c.Data.TagsFile == "" {
		c.Data.TagsFile = filepath.Join("batch", "results.jsonl")
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be between 0 and 65535, got %d", c.Admin.Port)
	}
	if c.Admin.Port != 0 && c.Admin.Port == c.Server.Port {
		return fmt.Errorf("admin.port must differ from server.port")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
