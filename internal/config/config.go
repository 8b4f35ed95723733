package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service. It is loaded
// once at startup and treated as immutable afterwards.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Provider    ProviderConfig            `json:"provider"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// AuthTokenTTL is the bearer token lifetime in hours.
	AuthTokenTTL int `json:"auth_token_ttl"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ProviderConfig describes the process-wide generation provider. The API
// key may come from the file or from the PERSONACHAT_LLM_KEY environment
// variable, which takes precedence.
type ProviderConfig struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
	// TimeoutSeconds bounds a single generation call.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if key := os.Getenv("PERSONACHAT_LLM_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "openai"
	}

	return &cfg, nil
}
