package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used by Save when the config was not loaded from a file.
const DefaultConfigPath = "/etc/pitftgps/config.yaml"

// Config holds all receiver and display configuration.
type Config struct {
	mu sync.RWMutex

	// Receiver source
	GPS GPSConfig `yaml:"gps" json:"gps"`

	// Display preferences
	Display DisplayConfig `yaml:"display" json:"display"`

	// Track log
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Snapshot publishing
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type GPSConfig struct {
	Type          string `yaml:"type" json:"type"`          // "nmea", "replay" or "demo"
	PortPath      string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyAMA0
	BaudRate      int    `yaml:"baud_rate" json:"baudRate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" json:"readTimeoutMs"`
	ReplayPath    string `yaml:"replay_path" json:"replayPath"`
	ReplayRate    int    `yaml:"replay_rate" json:"replayRate"` // lines per second
	ReplayLoop    bool   `yaml:"replay_loop" json:"replayLoop"`
	LogIntervalMs int    `yaml:"log_interval_ms" json:"logIntervalMs"` // checksum failure log throttle
}

func (g GPSConfig) ReadTimeout() time.Duration {
	return time.Duration(g.ReadTimeoutMs) * time.Millisecond
}

func (g GPSConfig) LogInterval() time.Duration {
	return time.Duration(g.LogIntervalMs) * time.Millisecond
}

type DisplayConfig struct {
	RefreshMs int         `yaml:"refresh_ms" json:"refreshMs"`
	StaleMs   int         `yaml:"stale_ms" json:"staleMs"` // fix age that flags the display as stale
	Units     UnitsConfig `yaml:"units" json:"units"`
	Sky       SkyConfig   `yaml:"sky" json:"sky"`
}

type UnitsConfig struct {
	Altitude string `yaml:"altitude" json:"altitude"` // "m" or "ft"
	Speed    string `yaml:"speed" json:"speed"`       // "kn", "kph" or "mph"
}

// SkyConfig places the satellite plot: a circle of Radius pixels centred on
// (CenterX, CenterY), zenith in the middle, horizon on the rim.
type SkyConfig struct {
	CenterX float64 `yaml:"center_x" json:"centerX"`
	CenterY float64 `yaml:"center_y" json:"centerY"`
	Radius  float64 `yaml:"radius" json:"radius"`
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between log entries
}

type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Broker     string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	Topic      string `yaml:"topic" json:"topic"`
	ClientID   string `yaml:"client_id" json:"clientId"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
	Metrics    bool   `yaml:"metrics" json:"metrics"` // expose /metrics
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GPS: GPSConfig{
			Type:          "demo",
			PortPath:      "/dev/ttyAMA0",
			BaudRate:      9600,
			ReadTimeoutMs: 3000,
			ReplayRate:    5,
			ReplayLoop:    true,
			LogIntervalMs: 10000,
		},
		Display: DisplayConfig{
			RefreshMs: 1000,
			StaleMs:   5000,
			Units: UnitsConfig{
				Altitude: "m",
				Speed:    "kn",
			},
			Sky: SkyConfig{
				CenterX: 160,
				CenterY: 120,
				Radius:  120,
			},
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/pitftgps",
			Interval: 1000,
		},
		MQTT: MQTTConfig{
			Enabled:    false,
			Broker:     "tcp://localhost:1883",
			Topic:      "pitftgps/snapshot",
			ClientID:   "pitftgps",
			IntervalMs: 1000,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			Metrics:    true,
		},
	}
}

// LoadConfig builds the effective config: defaults, then the YAML file at
// path, then .env files, then the process environment. A missing or broken
// file leaves the defaults in place.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	if data, err := os.ReadFile(path); err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] cannot parse %s (%v), using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	loadEnvFile(filepath.Join(filepath.Dir(path), ".env"))
	loadEnvFile(".env")
	cfg.applyEnv(os.Getenv)
	return cfg
}

// loadEnvFile exports KEY=VALUE lines that are not already set in the
// environment. Quotes around values are stripped.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || os.Getenv(key) != "" {
			continue
		}
		os.Setenv(key, strings.Trim(strings.TrimSpace(val), `"'`))
	}
}

type envBinding struct {
	key string
	set func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func num(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func flag(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v == "1" || v == "true" || v == "yes"
		return nil
	}
}

// envBindings lists the supported environment overrides. GPS_READ_TIMEOUT
// and LOG_INTERVAL_MS are milliseconds. Setting MQTT_BROKER also enables
// publishing.
var envBindings = []envBinding{
	{"GPS_TYPE", str(func(c *Config) *string { return &c.GPS.Type })},
	{"GPS_PORT", str(func(c *Config) *string { return &c.GPS.PortPath })},
	{"GPS_BAUD", num(func(c *Config) *int { return &c.GPS.BaudRate })},
	{"GPS_READ_TIMEOUT", num(func(c *Config) *int { return &c.GPS.ReadTimeoutMs })},
	{"GPS_REPLAY_PATH", str(func(c *Config) *string { return &c.GPS.ReplayPath })},
	{"LISTEN_ADDR", str(func(c *Config) *string { return &c.Server.ListenAddr })},
	{"MQTT_BROKER", func(c *Config, v string) error {
		c.MQTT.Broker, c.MQTT.Enabled = v, true
		return nil
	}},
	{"MQTT_TOPIC", str(func(c *Config) *string { return &c.MQTT.Topic })},
	{"LOG_ENABLED", flag(func(c *Config) *bool { return &c.Logging.Enabled })},
	{"LOG_PATH", str(func(c *Config) *string { return &c.Logging.Path })},
	{"LOG_INTERVAL_MS", num(func(c *Config) *int { return &c.Logging.Interval })},
}

func (c *Config) applyEnv(getenv func(string) string) {
	for _, b := range envBindings {
		v := getenv(b.key)
		if v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			log.Printf("[config] ignoring %s=%q: %v", b.key, v, err)
		}
	}
}

// DisplaySettings returns the display section; it can change at runtime
// through the config API.
func (c *Config) DisplaySettings() DisplayConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Display
}

// GPSSettings copies the gps section under the lock.
func (c *Config) GPSSettings() GPSConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GPS
}

func (c *Config) MQTTSettings() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

func (c *Config) ServerSettings() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// Path is where Save writes.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.path == "" {
		return DefaultConfigPath
	}
	return c.path
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	path := c.Path()

	c.mu.RLock()
	data, err := yaml.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON merges a partial JSON document into the config. Objects
// merge key by key; any other value replaces the current one.
func (c *Config) UpdateFromJSON(data []byte) error {
	var patch map[string]any
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("config patch: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var doc map[string]any
	cur, err := json.Marshal(c)
	if err == nil {
		err = json.Unmarshal(cur, &doc)
	}
	if err != nil {
		return fmt.Errorf("config snapshot: %w", err)
	}
	merge(doc, patch)

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config merge: %w", err)
	}
	return json.Unmarshal(merged, c)
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, isObj := v.(map[string]any)
		cur, hasObj := dst[k].(map[string]any)
		if isObj && hasObj {
			merge(cur, sub)
		} else {
			dst[k] = v
		}
	}
}
