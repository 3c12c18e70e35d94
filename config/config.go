package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config describes one lane-rpc node.
type Config struct {
	// Identity
	ServerID  int32 `env:"SERVER_ID" required:"true"`
	WorkerNum int   `env:"WORKER_NUM" default:"4"`

	// Runtime
	UpdateInterval time.Duration `env:"UPDATE_INTERVAL" default:"50ms"`
	CallTTL        time.Duration `env:"CALL_TTL" default:"10s"`

	// Transport
	ListenAddr        string           `env:"LISTEN_ADDR" default:":7001"`
	AdvertiseAddr     string           `env:"ADVERTISE_ADDR"`
	Peers             map[int32]string `env:"PEERS"`
	Clients           []int32          `env:"CLIENTS"`
	HeartbeatInterval time.Duration    `env:"HEARTBEAT_INTERVAL" default:"5s"`

	// Directory
	EtcdEndpoints []string `env:"ETCD_ENDPOINTS"`

	// Middleware
	RateLimit float64 `env:"RATE_LIMIT" default:"0"`
	RateBurst int     `env:"RATE_BURST" default:"0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadConfig reads the given .env files (".env" when none are named) and
// then the process environment. A missing file is not an error.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("[Config] %s not found, using environment only", f)
		case err != nil:
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}

	// Identity
	var id int
	if err := loadEnvIntRequired(&id, "SERVER_ID"); err != nil {
		return nil, err
	}
	cfg.ServerID = int32(id)
	if err := loadEnvInt(&cfg.WorkerNum, "WORKER_NUM", 4); err != nil {
		return nil, err
	}

	// Runtime
	if err := loadEnvDuration(&cfg.UpdateInterval, "UPDATE_INTERVAL", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&cfg.CallTTL, "CALL_TTL", 10*time.Second); err != nil {
		return nil, err
	}

	// Transport
	loadEnvString(&cfg.ListenAddr, "LISTEN_ADDR", ":7001")
	loadEnvString(&cfg.AdvertiseAddr, "ADVERTISE_ADDR", "")
	if err := loadEnvPeers(&cfg.Peers, "PEERS"); err != nil {
		return nil, err
	}
	if err := loadEnvIDs(&cfg.Clients, "CLIENTS"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&cfg.HeartbeatInterval, "HEARTBEAT_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	// Directory
	loadEnvStringSlice(&cfg.EtcdEndpoints, "ETCD_ENDPOINTS", nil)

	// Middleware
	if err := loadEnvFloat(&cfg.RateLimit, "RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.RateBurst, "RATE_BURST", 0); err != nil {
		return nil, err
	}

	// Logging
	loadEnvString(&cfg.LogLevel, "LOG_LEVEL", "info")
	loadEnvString(&cfg.LogFormat, "LOG_FORMAT", "text")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvString(target *string, key, defaultValue string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
}

func loadEnvIntRequired(target *int, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return fmt.Errorf("required environment variable %s is not set", key)
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer value for %s: %v", key, err)
	}
	*target = parsed
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvStringSlice(target *[]string, key string, defaultValue []string) {
	value := os.Getenv(key)
	if value == "" {
		*target = defaultValue
		return
	}
	*target = nil
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*target = append(*target, v)
		}
	}
}

// loadEnvPeers parses "2=host:port,3=host:port". An empty address ("4=")
// is resolved through the directory.
func loadEnvPeers(target *map[int32]string, key string) error {
	peers, err := ParsePeers(os.Getenv(key))
	if err != nil {
		return fmt.Errorf("invalid peers value for %s: %v", key, err)
	}
	*target = peers
	return nil
}

func loadEnvIDs(target *[]int32, key string) error {
	var raw []string
	loadEnvStringSlice(&raw, key, nil)
	ids := make([]int32, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid server id %q in %s", v, key)
		}
		ids = append(ids, int32(id))
	}
	*target = ids
	return nil
}

// ParsePeers parses a comma separated list of id=address pairs.
func ParsePeers(value string) (map[int32]string, error) {
	peers := make(map[int32]string)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idStr, addr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not id=address", entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 32)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("entry %q has an invalid server id", entry)
		}
		if _, dup := peers[int32(id)]; dup {
			return nil, fmt.Errorf("server id %d listed twice", id)
		}
		peers[int32(id)] = strings.TrimSpace(addr)
	}
	return peers, nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errs []string

	if c.ServerID <= 0 {
		errs = append(errs, "SERVER_ID must be positive")
	}
	if c.WorkerNum < 1 {
		errs = append(errs, "WORKER_NUM must be at least 1")
	}
	if c.UpdateInterval <= 0 {
		errs = append(errs, "UPDATE_INTERVAL must be positive")
	}
	if c.CallTTL <= 0 {
		errs = append(errs, "CALL_TTL must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, "HEARTBEAT_INTERVAL must be positive")
	}
	if _, self := c.Peers[c.ServerID]; self {
		errs = append(errs, "PEERS must not list SERVER_ID")
	}
	for id, addr := range c.Peers {
		if addr == "" && !c.UsesEtcd() {
			errs = append(errs, fmt.Sprintf("PEERS entry %d has no address and ETCD_ENDPOINTS is empty", id))
		}
	}
	seen := make(map[int32]bool, len(c.Clients))
	for _, id := range c.Clients {
		_, peer := c.Peers[id]
		if id == c.ServerID || peer || seen[id] {
			errs = append(errs, fmt.Sprintf("CLIENTS entry %d repeats SERVER_ID, a peer or another client", id))
		}
		seen[id] = true
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, "RATE_LIMIT and RATE_BURST must not be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"text", "json"}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Advertise returns the address other nodes should dial.
func (c *Config) Advertise() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return c.ListenAddr
}

// UsesEtcd reports whether the directory is etcd rather than in-memory.
func (c *Config) UsesEtcd() bool {
	return len(c.EtcdEndpoints) > 0
}
