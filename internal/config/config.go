// Package config provides configuration for the mcssh service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the mcssh configuration.
type Config struct {
	// ServerTap settings
	Server     string `yaml:"server"`
	Port       int    `yaml:"port"`
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"`

	// SSH settings
	ListenAddr        string `yaml:"listen"`
	HostKeyPath       string `yaml:"host_key"`
	AuthorizedKeysDir string `yaml:"authorized_keys"`
	ServerVersion     string `yaml:"ssh_version"`

	// Storage
	DatabaseURL string `yaml:"database"`

	// Status API, 0 disables it
	HTTPPort int `yaml:"http_port"`

	// Service lifecycle
	ServiceName    string   `yaml:"service"`
	RestartCommand []string `yaml:"restart_command"`

	// Authorization
	Admins     []string `yaml:"admins"`
	PolicyFile string   `yaml:"policy"`

	// Behaviour
	PlayersTTL     time.Duration `yaml:"players_ttl"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	Scrollback     int           `yaml:"scrollback"`

	// Logging
	LogFile string `yaml:"log_file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server:            "localhost",
		Port:              4567,
		SecretFile:        ".sec",
		ListenAddr:        ":2200",
		HostKeyPath:       "server.key",
		AuthorizedKeysDir: "authorized_keys",
		ServerVersion:     "SSH-2.0-mcssh",
		DatabaseURL:       "file:mcssh.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL",
		ServiceName:       "mcssh.service",
		PlayersTTL:        10 * time.Second,
		ReconnectDelay:    time.Second,
		PingInterval:      30 * time.Second,
		Scrollback:        200,
		LogFile:           "server_log.txt",
	}
}

// Load loads configuration from .env, an optional YAML file named by
// MCSSH_CONFIG, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("MCSSH_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.Secret == "" && cfg.SecretFile != "" {
		secret, err := readSecret(cfg.SecretFile)
		if err != nil {
			return nil, err
		}
		cfg.Secret = secret
	}
	if len(cfg.RestartCommand) == 0 {
		cfg.RestartCommand = []string{"sudo", "systemctl", "restart", cfg.ServiceName}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server = getEnv("MCSSH_SERVER", c.Server)
	c.Port = getEnvInt("MCSSH_PORT", c.Port)
	c.Secret = getEnv("MCSSH_SECRET", c.Secret)
	c.SecretFile = getEnv("MCSSH_SECRET_FILE", c.SecretFile)
	c.ListenAddr = getEnv("MCSSH_LISTEN", c.ListenAddr)
	c.HostKeyPath = getEnv("MCSSH_HOST_KEY", c.HostKeyPath)
	c.AuthorizedKeysDir = getEnv("MCSSH_AUTHORIZED_KEYS", c.AuthorizedKeysDir)
	c.ServerVersion = getEnv("MCSSH_SSH_VERSION", c.ServerVersion)
	c.DatabaseURL = getEnv("MCSSH_DATABASE", c.DatabaseURL)
	c.HTTPPort = getEnvInt("MCSSH_HTTP_PORT", c.HTTPPort)
	c.ServiceName = getEnv("MCSSH_SERVICE", c.ServiceName)
	c.PolicyFile = getEnv("MCSSH_POLICY", c.PolicyFile)
	c.PlayersTTL = time.Duration(getEnvInt("MCSSH_PLAYERS_TTL_MS", int(c.PlayersTTL.Milliseconds()))) * time.Millisecond
	c.ReconnectDelay = time.Duration(getEnvInt("MCSSH_RECONNECT_MS", int(c.ReconnectDelay.Milliseconds()))) * time.Millisecond
	c.PingInterval = time.Duration(getEnvInt("MCSSH_PING_MS", int(c.PingInterval.Milliseconds()))) * time.Millisecond
	c.Scrollback = getEnvInt("MCSSH_SCROLLBACK", c.Scrollback)
	if val, ok := os.LookupEnv("MCSSH_LOG_FILE"); ok {
		c.LogFile = val
	}
	if val := os.Getenv("MCSSH_RESTART_COMMAND"); val != "" {
		c.RestartCommand = strings.Fields(val)
	}
	if val := os.Getenv("MCSSH_ADMINS"); val != "" {
		c.Admins = splitList(val)
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("config: server must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.ListenAddr == "" {
		return errors.New("config: listen address must not be empty")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: http port %d out of range", c.HTTPPort)
	}
	if c.Scrollback < 0 {
		return fmt.Errorf("config: scrollback %d must not be negative", c.Scrollback)
	}
	return nil
}

// ConsoleURL returns the ServerTap console WebSocket URL.
func (c *Config) ConsoleURL() string {
	return fmt.Sprintf("ws://%s:%d/v1/ws/console", c.Server, c.Port)
}

// APIBaseURL returns the ServerTap REST base URL.
func (c *Config) APIBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server, c.Port)
}

// IsAdmin reports whether the SSH user may run privileged commands.
// With no admins configured every authenticated user is an admin.
func (c *Config) IsAdmin(user string) bool {
	if len(c.Admins) == 0 {
		return true
	}
	for _, a := range c.Admins {
		if a == user {
			return true
		}
	}
	return false
}

func readSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
