package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. PUNCHBRIDGE_DB_PATH.
const Prefix = "PUNCHBRIDGE"

var ErrMissingDeviceAddr = errors.New("PUNCHBRIDGE_DEVICE_ADDR is required")

type Config struct {
	// Device
	DeviceAddr           string        `envconfig:"DEVICE_ADDR"`
	DevicePort           int           `envconfig:"DEVICE_PORT" default:"4370"`
	DevicePath           string        `envconfig:"DEVICE_PATH" default:"/live"`
	DeviceConnectTimeout time.Duration `envconfig:"DEVICE_CONNECT_TIMEOUT" default:"5s"`
	DeviceReconnectDelay time.Duration `envconfig:"DEVICE_RECONNECT_DELAY" default:"10s"`
	DevicePingInterval   time.Duration `envconfig:"DEVICE_PING_INTERVAL" default:"30s"`

	// Local queue and directory cache
	DBPath string `envconfig:"DB_PATH" default:"./data/punchbridge.db"`

	// Remote store
	CredentialsFile      string        `envconfig:"CREDENTIALS_FILE"`
	ProjectID            string        `envconfig:"PROJECT_ID"` // empty = detect from credentials
	DirectoryCollection  string        `envconfig:"DIRECTORY_COLLECTION" default:"employees"`
	AttendanceCollection string        `envconfig:"ATTENDANCE_COLLECTION" default:"attendance"`
	DirectoryTimeout     time.Duration `envconfig:"DIRECTORY_TIMEOUT" default:"60s"`

	// Sync
	BatchSize          int           `envconfig:"BATCH_SIZE" default:"10"`
	IdleInterval       time.Duration `envconfig:"IDLE_INTERVAL" default:"5s"`
	ErrorBackoff       time.Duration `envconfig:"ERROR_BACKOFF" default:"10s"`
	UpsertTimeout      time.Duration `envconfig:"UPSERT_TIMEOUT" default:"15s"`
	DayBoundaryHour    int           `envconfig:"DAY_BOUNDARY_HOUR" default:"18"`
	Timezone           string        `envconfig:"TIMEZONE" default:"Local"`
	CheckInStatusCodes []int         `envconfig:"CHECKIN_STATUS_CODES" default:"0"`
	WakeOnAppend       bool          `envconfig:"WAKE_ON_APPEND" default:"false"`
	AgentID            string        `envconfig:"AGENT_ID"` // empty = hostname

	// Local status surfaces; empty disables
	HTTPAddr string `envconfig:"HTTP_ADDR" default:"127.0.0.1:8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:"127.0.0.1:9090"`

	// Logging
	LogFile   string `envconfig:"LOG_FILE"`
	LogStdout bool   `envconfig:"LOG_STDOUT" default:"false"`

	// Location is Timezone resolved by Load.
	Location *time.Location `ignored:"true"`
}

// Load reads envFile (or ./.env when envFile is empty and the file exists)
// into the process environment without overriding variables already set,
// then decodes and validates the configuration.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s_TIMEZONE: %w", Prefix, err)
	}
	cfg.Location = loc

	if cfg.AgentID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "unknown"
		}
		cfg.AgentID = host
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the workers cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DayBoundaryHour < 0 || c.DayBoundaryHour > 23 {
		errs = append(errs, fmt.Errorf("%s_DAY_BOUNDARY_HOUR must be 0..23, got %d", Prefix, c.DayBoundaryHour))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("%s_BATCH_SIZE must be at least 1, got %d", Prefix, c.BatchSize))
	}
	if c.DevicePort < 1 || c.DevicePort > 65535 {
		errs = append(errs, fmt.Errorf("%s_DEVICE_PORT out of range: %d", Prefix, c.DevicePort))
	}
	for name, d := range map[string]time.Duration{
		"DEVICE_CONNECT_TIMEOUT": c.DeviceConnectTimeout,
		"DEVICE_RECONNECT_DELAY": c.DeviceReconnectDelay,
		"DEVICE_PING_INTERVAL":   c.DevicePingInterval,
		"DIRECTORY_TIMEOUT":      c.DirectoryTimeout,
		"IDLE_INTERVAL":          c.IdleInterval,
		"ERROR_BACKOFF":          c.ErrorBackoff,
		"UPSERT_TIMEOUT":         c.UpsertTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s_%s must be positive, got %s", Prefix, name, d))
		}
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("%s_DB_PATH is empty", Prefix))
	}
	return errors.Join(errs...)
}

// RequireDevice is checked by commands that open a device session.
func (c *Config) RequireDevice() error {
	if c.DeviceAddr == "" {
		return ErrMissingDeviceAddr
	}
	return nil
}
