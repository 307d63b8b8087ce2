// Package config defines the on-disk settings surface for the bridge and
// loads it the same way the teacher's cmd/can-server flags are parsed and
// validated: read, apply defaults, apply environment overrides, validate.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// ErrConfigInvalid is returned by Validate for any semantic configuration
// error; callers treat it as fatal to process startup.
var ErrConfigInvalid = errors.New("config invalid")

// SerialConfig configures the field-bus serial connection.
type SerialConfig struct {
	Port         string `json:"port"`
	Autodiscover bool   `json:"autodiscover"`
}

// ConnectionConfig configures one TCP listening endpoint.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Relay   bool   `json:"relay"`
	SSL     bool   `json:"ssl"`
	PK      string `json:"pk"`
	Cert    string `json:"cert"`
	Auth    bool   `json:"auth"`
	AuthKey string `json:"auth_key"`
}

// NTPConfig configures the minute-boundary time/date broadcaster.
type NTPConfig struct {
	Enabled  bool   `json:"enabled"`
	Synctime string `json:"synctime"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Type   string `json:"type"`
	Output string `json:"output"`
}

// Config is the full settings document, unmarshaled from JSON.
type Config struct {
	Serial      SerialConfig       `json:"serial"`
	Connections []ConnectionConfig `json:"connections"`
	NTP         NTPConfig          `json:"ntp"`
	Logging     LoggingConfig      `json:"logging"`
}

// Default returns the configuration used when no settings file is given.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{Autodiscover: true},
		Connections: []ConnectionConfig{
			{Host: "0.0.0.0", Port: 27015, Relay: true},
		},
		Logging: LoggingConfig{Type: "info", Output: "stream"},
	}
}

// Load reads and parses the settings file at path. An empty path returns
// Default(). Environment variables prefixed VELBUS_BRIDGE_ override the
// parsed values, and the result is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrConfigInvalid, path, err)
		}
		parsed := Default()
		if err := json.Unmarshal(data, parsed); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfigInvalid, path, err)
		}
		cfg = parsed
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps VELBUS_BRIDGE_* environment variables onto scalar
// top-level settings, mirroring the teacher's applyEnvOverrides for
// cmd/can-server. Per-connection fields are not individually addressable
// by environment variable since, unlike the teacher's single backend, the
// connections list is unbounded; a settings file is required to configure
// more than the defaults.
func applyEnvOverrides(c *Config) {
	if v, ok := lookupEnv("VELBUS_BRIDGE_SERIAL_PORT"); ok {
		c.Serial.Port = v
	}
	if v, ok := lookupEnv("VELBUS_BRIDGE_SERIAL_AUTODISCOVER"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Serial.Autodiscover = b
		}
	}
	if v, ok := lookupEnv("VELBUS_BRIDGE_NTP_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.NTP.Enabled = b
		}
	}
	if v, ok := lookupEnv("VELBUS_BRIDGE_NTP_SYNCTIME"); ok {
		c.NTP.Synctime = v
	}
	if v, ok := lookupEnv("VELBUS_BRIDGE_LOG_TYPE"); ok {
		c.Logging.Type = v
	}
	if v, ok := lookupEnv("VELBUS_BRIDGE_LOG_OUTPUT"); ok {
		c.Logging.Output = v
	}
}

func lookupEnv(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Validate checks semantic constraints spec.md 6 places on the settings
// document.
func (c *Config) Validate() error {
	switch c.Logging.Type {
	case "info", "debug":
	default:
		return fmt.Errorf("%w: logging.type must be info or debug, got %q", ErrConfigInvalid, c.Logging.Type)
	}
	switch c.Logging.Output {
	case "stream", "syslog":
	default:
		return fmt.Errorf("%w: logging.output must be stream or syslog, got %q", ErrConfigInvalid, c.Logging.Output)
	}

	for i, conn := range c.Connections {
		if conn.Host != "" && net.ParseIP(conn.Host) == nil {
			return fmt.Errorf("%w: connections[%d].host %q is not a valid IP", ErrConfigInvalid, i, conn.Host)
		}
		if conn.Port < 0 || conn.Port > 65535 {
			return fmt.Errorf("%w: connections[%d].port %d out of range", ErrConfigInvalid, i, conn.Port)
		}
		if conn.SSL {
			f, err := os.Open(conn.PK)
			if err != nil {
				return fmt.Errorf("%w: connections[%d].pk unreadable: %v", ErrConfigInvalid, i, err)
			}
			_ = f.Close()
			f, err = os.Open(conn.Cert)
			if err != nil {
				return fmt.Errorf("%w: connections[%d].cert unreadable: %v", ErrConfigInvalid, i, err)
			}
			_ = f.Close()
		}
		if conn.Auth && conn.AuthKey == "" {
			return fmt.Errorf("%w: connections[%d].auth_key must be non-empty when auth is enabled", ErrConfigInvalid, i)
		}
	}

	if c.NTP.Synctime != "" {
		if _, _, err := parseHHMM(c.NTP.Synctime); err != nil {
			return fmt.Errorf("%w: ntp.synctime: %v", ErrConfigInvalid, err)
		}
	}

	return nil
}

// parseHHMM parses an "hh:mm" string into hour and minute.
func parseHHMM(s string) (hh, mm int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected hh:mm, got %q", s)
	}
	hh, err = strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh, mm, nil
}
