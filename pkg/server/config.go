package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds the resolved runtime configuration.
type ServerConfig struct {
	TCPPort          int
	HTTPPort         int
	DataFile         string
	Banner           string
	MaxLineBytes     int
	ReadTimeout      time.Duration
	CommandRateLimit int
	ShutdownWait     time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TCPPort:          8080,
		HTTPPort:         8081,
		DataFile:         "users/users.txt",
		Banner:           "TCP account server",
		MaxLineBytes:     4096,
		ReadTimeout:      30 * time.Second,
		CommandRateLimit: 120, // per minute
		ShutdownWait:     5 * time.Second,
	}
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	TCPPort  int    `toml:"tcp_port"`
	HTTPPort int    `toml:"http_port"`
	DataFile string `toml:"data_file"`
	Banner   string `toml:"banner"`
}

type LimitsSection struct {
	MaxLineBytes        int `toml:"max_line_bytes"`
	ReadTimeoutSeconds  int `toml:"read_timeout_seconds"`
	CommandRateLimit    int `toml:"command_rate_limit"`
	ShutdownWaitSeconds int `toml:"shutdown_wait_seconds"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			TCPPort:  8080,
			HTTPPort: 8081,
			DataFile: "users/users.txt",
			Banner:   "TCP account server",
		},
		Limits: LimitsSection{
			MaxLineBytes:        4096,
			ReadTimeoutSeconds:  30,
			CommandRateLimit:    120,
			ShutdownWaitSeconds: 5,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// Could not write (permissions?), run on defaults anyway.
			return config, nil
		}
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# Account Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}
	cfg.HTTPPort = c.Server.HTTPPort
	if strings.TrimSpace(c.Server.DataFile) != "" {
		cfg.DataFile = c.Server.DataFile
	}
	if strings.TrimSpace(c.Server.Banner) != "" {
		cfg.Banner = c.Server.Banner
	}
	if c.Limits.MaxLineBytes != 0 {
		cfg.MaxLineBytes = c.Limits.MaxLineBytes
	}
	if c.Limits.ReadTimeoutSeconds != 0 {
		cfg.ReadTimeout = time.Duration(c.Limits.ReadTimeoutSeconds) * time.Second
	}
	cfg.CommandRateLimit = c.Limits.CommandRateLimit
	if c.Limits.ShutdownWaitSeconds != 0 {
		cfg.ShutdownWait = time.Duration(c.Limits.ShutdownWaitSeconds) * time.Second
	}

	return cfg
}

// GetDataFile returns the data file path with ~ expanded
func (c *TOMLConfig) GetDataFile() (string, error) {
	path := c.Server.DataFile
	if path == "" {
		path = DefaultConfig().DataFile
	}
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}
