package config

import (
	"encoding/json"
	"fmt"
	"os"

	"pgw-gateway/internal/netio"
)

// ClientConfig holds the load-generator client's configuration.
type ClientConfig struct {
	ServerUDPIP   string `json:"server_udp_ip"`
	ServerUDPPort uint16 `json:"server_udp_port"`
	LogFile       string `json:"log_file"`
	LogLevel      string `json:"log_level"`
}

// LoadClientConfig reads and validates the client config at path.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg ClientConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if _, err := netio.ParseIPv4(cfg.ServerUDPIP); err != nil {
		return nil, fmt.Errorf("server_udp_ip invalid: %w", err)
	}
	if !validLogLevels[cfg.LogLevel] {
		return nil, fmt.Errorf("wrong log level %q", cfg.LogLevel)
	}
	return &cfg, nil
}
