package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Graph    GraphConfig    `toml:"graph"`
	OpenAI   OpenAIConfig   `toml:"openai"`
	Server   ServerConfig   `toml:"server"`
	Analysis AnalysisConfig `toml:"analysis"`
	Data     DataConfig     `toml:"data"`
	Log      LogConfig      `toml:"log"`
}

type GraphConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TenantID     string `toml:"tenant_id"`
	Hostname     string `toml:"hostname"`
	SitePath     string `toml:"site_path"`
	ListID       string `toml:"list_id"`
	// MaxItems caps how many list rows are fetched; 0 means the full list.
	MaxItems int `toml:"max_items"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// RequestTimeoutSeconds bounds one analysis request end-to-end,
	// including every generative call.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

type AnalysisConfig struct {
	// ChunkSize is the maximum prompt-text chunk length in characters.
	ChunkSize int `toml:"chunk_size"`
	// PreviewRows caps how many rows of the table are serialized into the
	// filter-synthesis prompt.
	PreviewRows int `toml:"preview_rows"`
}

type DataConfig struct {
	// Dir holds the snapshot archive, audit log and saved reports.
	Dir string `toml:"dir"`
	// RefreshMinutes re-fetches the timesheet list periodically; 0 disables.
	RefreshMinutes int `toml:"refresh_minutes"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

func DefaultConfig() Config {
	return Config{
		Graph: GraphConfig{
			Hostname: "maargasystems007.sharepoint.com",
			SitePath: "TimesheetSolution",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Server: ServerConfig{
			Addr:                  ":8000",
			RequestTimeoutSeconds: 300,
		},
		Analysis: AnalysisConfig{
			ChunkSize:   120000,
			PreviewRows: 5000,
		},
		Data: DataConfig{
			RefreshMinutes: 0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tsai"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path, falling back to defaults when the file
// does not exist. Environment variables override file values either way.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment are enough to run.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Data.Dir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.Data.Dir = dir
	}

	return &cfg, nil
}

// applyEnvOverrides honors the environment variable names the service has
// always been deployed with.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLIENT_ID"); v != "" {
		cfg.Graph.ClientID = v
	}
	if v := os.Getenv("CLIENT_SECRET"); v != "" {
		cfg.Graph.ClientSecret = v
	}
	if v := os.Getenv("TENANT_ID"); v != "" {
		cfg.Graph.TenantID = v
	}
	if v := os.Getenv("SHAREPOINT_LIST_ID"); v != "" {
		cfg.Graph.ListID = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("NUM_ITEMS"); v != "" && v != "full" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Graph.MaxItems = n
		}
	}
	if v := os.Getenv("TSAI_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate checks the settings every command needs before touching the
// network.
func (c *Config) Validate() error {
	if c.Graph.ClientID == "" || c.Graph.ClientSecret == "" || c.Graph.TenantID == "" {
		return fmt.Errorf("graph credentials not configured — set client_id, client_secret and tenant_id (or CLIENT_ID/CLIENT_SECRET/TENANT_ID)")
	}
	if c.Graph.ListID == "" {
		return fmt.Errorf("sharepoint list not configured — set list_id (or SHAREPOINT_LIST_ID)")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai API key not configured — set api_key (or OPENAI_API_KEY)")
	}
	return nil
}

func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
