package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultServerAddress     = "127.0.0.1:4096"
	defaultHeadLines         = 100
	defaultTailLines         = 100
	defaultMaxReconnects     = 5
	defaultReconnectDelayMS  = 1000
	defaultReconnectMaxMS    = 10000
	defaultPollIntervalMS    = 1500
	defaultRequestsPerSecond = 2.0
	streamDebugEnv           = "AGENTDECK_STREAM_DEBUG"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
	defaultTransport   = TransportSSE
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
	Stream  StreamConfig  `toml:"stream"`
	Poller  PollerConfig  `toml:"poller"`
	Debug   DebugConfig   `toml:"debug"`
}

type ServerConfig struct {
	Address   string `toml:"address"`
	Token     string `toml:"token,omitempty"`
	TokenFile string `toml:"token_file,omitempty"`
	Transport string `toml:"transport"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type StreamConfig struct {
	HeadLines           int `toml:"head_lines"`
	TailLines           int `toml:"tail_lines"`
	MaxReconnects       int `toml:"max_reconnects"`
	ReconnectDelayMS    int `toml:"reconnect_delay_ms"`
	ReconnectMaxDelayMS int `toml:"reconnect_max_delay_ms"`
}

type PollerConfig struct {
	IntervalMS        int     `toml:"interval_ms"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type DebugConfig struct {
	StreamDebug bool `toml:"stream_debug"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:   defaultServerAddress,
			Transport: defaultTransport,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Stream: StreamConfig{
			HeadLines:           defaultHeadLines,
			TailLines:           defaultTailLines,
			MaxReconnects:       defaultMaxReconnects,
			ReconnectDelayMS:    defaultReconnectDelayMS,
			ReconnectMaxDelayMS: defaultReconnectMaxMS,
		},
		Poller: PollerConfig{
			IntervalMS:        defaultPollIntervalMS,
			RequestsPerSecond: defaultRequestsPerSecond,
		},
	}
}

// Load reads ~/.agentdeck/config.toml. A missing or empty file yields the
// defaults.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFromPath(path)
}

func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func (c Config) ServerAddress() string {
	addr := strings.TrimSpace(c.Server.Address)
	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	addr = strings.TrimRight(addr, "/")
	if addr == "" {
		return defaultServerAddress
	}
	return addr
}

func (c Config) ServerBaseURL() string {
	if strings.HasPrefix(strings.TrimSpace(c.Server.Address), "https://") {
		return "https://" + c.ServerAddress()
	}
	return "http://" + c.ServerAddress()
}

func (c Config) Transport() string {
	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "ws", TransportWebSocket:
		return TransportWebSocket
	default:
		return TransportSSE
	}
}

// TokenFilePath resolves [server] token_file, falling back to the default
// token location.
func (c Config) TokenFilePath() (string, error) {
	path := strings.TrimSpace(c.Server.TokenFile)
	if path == "" {
		return TokenPath()
	}
	return resolveConfigPath(path)
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func (c Config) HeadLines() int {
	return positiveOr(c.Stream.HeadLines, defaultHeadLines)
}

func (c Config) TailLines() int {
	return positiveOr(c.Stream.TailLines, defaultTailLines)
}

// MaxReconnects allows zero to disable reconnection.
func (c Config) MaxReconnects() int {
	if c.Stream.MaxReconnects < 0 {
		return defaultMaxReconnects
	}
	return c.Stream.MaxReconnects
}

func (c Config) ReconnectDelay() time.Duration {
	return time.Duration(positiveOr(c.Stream.ReconnectDelayMS, defaultReconnectDelayMS)) * time.Millisecond
}

func (c Config) ReconnectMaxDelay() time.Duration {
	maxDelay := time.Duration(positiveOr(c.Stream.ReconnectMaxDelayMS, defaultReconnectMaxMS)) * time.Millisecond
	if base := c.ReconnectDelay(); maxDelay < base {
		return base
	}
	return maxDelay
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(positiveOr(c.Poller.IntervalMS, defaultPollIntervalMS)) * time.Millisecond
}

func (c Config) RequestsPerSecond() float64 {
	if c.Poller.RequestsPerSecond < 0 {
		return 0
	}
	return c.Poller.RequestsPerSecond
}

func (c Config) StreamDebugEnabled() bool {
	return c.Debug.StreamDebug || strings.TrimSpace(os.Getenv(streamDebugEnv)) == "1"
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func resolveConfigPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, path), nil
}
