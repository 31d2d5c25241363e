// Package config implements JSON configuration loading and, for the
// server, hot reload of its reloadable subset on an mtime poll.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/ie"
	"pgw-gateway/internal/netio"
)

// ServerConfig holds the PGW server's configuration. udp_ip/http_ip,
// the ports, cdr_file/cdr_file_max_lines, log_file, and blacklist are
// fixed at startup; session_timeout_sec, gracefull_shutdown_rate, and
// log_level may change on reload.
type ServerConfig struct {
	UDPIP    string `json:"udp_ip"`
	UDPPort  uint16 `json:"udp_port"`
	HTTPIP   string `json:"http_ip"`
	HTTPPort uint16 `json:"http_port"`

	SessionTimeoutSec     uint64 `json:"session_timeout_sec"`
	GracefulShutdownRate  uint64 `json:"gracefull_shutdown_rate"`

	CDRFile          string `json:"cdr_file"`
	CDRFileMaxLines  int    `json:"cdr_file_max_lines"`

	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`

	Blacklist []string `json:"blacklist"`

	path        string
	lastModTime time.Time
}

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

// LoadServerConfig reads and fully validates the config at path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	cfg, err := readServerConfig(path)
	if err != nil {
		return nil, err
	}
	if err := validateUnreloadable(cfg); err != nil {
		return nil, err
	}
	if err := validateReloadable(cfg); err != nil {
		return nil, err
	}

	cfg.path = path
	cfg.lastModTime = info.ModTime()
	return cfg, nil
}

func readServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func validateUnreloadable(cfg *ServerConfig) error {
	if _, err := netio.ParseIPv4(cfg.UDPIP); err != nil {
		return fmt.Errorf("udp_ip invalid: %w", err)
	}
	if _, err := netio.ParseIPv4(cfg.HTTPIP); err != nil {
		return fmt.Errorf("http_ip invalid: %w", err)
	}
	if cfg.CDRFileMaxLines < 1000 {
		return fmt.Errorf("cdr journal too short (min 1000 lines)")
	}
	for _, s := range cfg.Blacklist {
		if !ie.Valid(s) {
			log.Infof("invalid IMSI in blacklist will be skipped: %s", s)
		}
	}
	return nil
}

func validateReloadable(cfg *ServerConfig) error {
	if cfg.SessionTimeoutSec == 0 {
		return fmt.Errorf("zero session timeout")
	}
	if cfg.SessionTimeoutSec > 24*60*60 {
		return fmt.Errorf("session timeout too long (max 1 day)")
	}
	if cfg.GracefulShutdownRate == 0 {
		return fmt.Errorf("zero shutdown rate")
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("wrong log level %q", cfg.LogLevel)
	}
	return nil
}

// ValidBlacklist returns the subset of Blacklist entries that parse as
// valid IMSIs, discarding the rest (already logged during Load).
func (c *ServerConfig) ValidBlacklist() map[ie.IMSI]struct{} {
	out := make(map[ie.IMSI]struct{}, len(c.Blacklist))
	for _, s := range c.Blacklist {
		if id, err := ie.NewIMSI(s); err == nil {
			out[id] = struct{}{}
		}
	}
	return out
}

// TryReload checks the config file's mtime and, if it changed, loads
// and validates the reloadable subset into a temporary value, only
// committing on full success. It returns whether anything changed.
func (c *ServerConfig) TryReload() (bool, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return false, fmt.Errorf("stat config: %w", err)
	}
	if !info.ModTime().After(c.lastModTime) {
		return false, nil
	}

	fresh, err := readServerConfig(c.path)
	if err != nil {
		return false, err
	}
	if err := validateReloadable(fresh); err != nil {
		return false, err
	}

	changed := fresh.SessionTimeoutSec != c.SessionTimeoutSec ||
		fresh.GracefulShutdownRate != c.GracefulShutdownRate ||
		fresh.LogLevel != c.LogLevel

	c.SessionTimeoutSec = fresh.SessionTimeoutSec
	c.GracefulShutdownRate = fresh.GracefulShutdownRate
	c.LogLevel = fresh.LogLevel
	c.lastModTime = info.ModTime()

	return changed, nil
}
