// Package config provides supervisor configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/cluster-supervisor/pkg/addr"
)

const logPrefix = "config:LoadConfig"

// Config holds cluster-supervisor configuration.
type Config struct {
	// Discovery sockets. Port 0 picks an ephemeral port.
	UDPAddr      string `envconfig:"SUPERVISOR_UDP_ADDR" default:"0.0.0.0:20086"`
	TCPAddr      string `envconfig:"SUPERVISOR_TCP_ADDR" default:"0.0.0.0:20087"`
	InternalAddr string `envconfig:"SUPERVISOR_INTERNAL_ADDR" default:"127.0.0.1:0"`
	// BroadcastAddr is the host broadcast replies are sent to.
	BroadcastAddr   string `envconfig:"SUPERVISOR_BROADCAST_ADDR" default:"255.255.255.255"`
	MaxBufferedBytes int   `envconfig:"SUPERVISOR_MAX_BUFFERED_BYTES" default:"1048576"`

	// Version admission rules, e.g. "cellapp@>=2.0.0; >=1.0.0". Overrides the cluster file.
	MinComponentVersion string `envconfig:"SUPERVISOR_MIN_COMPONENT_VERSION"`

	// Cluster file (TOML): component classes and the supervisor's own identity.
	ComponentsFile string `envconfig:"SUPERVISOR_COMPONENTS_FILE"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"SUPERVISOR_REQUEST_TIMEOUT" default:"5s"`

	// COMMS: optional NATS for change events and the query subject. Empty disables it.
	COMMSURL           string `envconfig:"COMMS_URL"`
	COMMSName          string `envconfig:"SERVICE_NAME" default:"cluster-supervisor"`
	QuerySubject       string `envconfig:"SUPERVISOR_QUERY_SUBJECT"`
	ChangeEventSubject string `envconfig:"SUPERVISOR_CHANGE_EVENT_SUBJECT"`

	// Database: optional write-only component journal. Empty disables it.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint (SUPERVISOR_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"SUPERVISOR_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the supervisor.
func (c *Config) ValidateForServe() error {
	for name, v := range map[string]string{
		"SUPERVISOR_UDP_ADDR":      c.UDPAddr,
		"SUPERVISOR_TCP_ADDR":      c.TCPAddr,
		"SUPERVISOR_INTERNAL_ADDR": c.InternalAddr,
	} {
		if _, err := addr.Parse(v); err != nil {
			return fmt.Errorf("%s - %s: %w", logPrefix, name, err)
		}
	}
	if c.BroadcastAddr == "" {
		return fmt.Errorf("%s - SUPERVISOR_BROADCAST_ADDR is required", logPrefix)
	}
	if c.MaxBufferedBytes <= 0 {
		return fmt.Errorf("%s - SUPERVISOR_MAX_BUFFERED_BYTES must be positive", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - SUPERVISOR_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// HTTPListenAddr returns the health endpoint address.
func (c *Config) HTTPListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}
