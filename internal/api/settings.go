package api

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/disputeflow/internal/config"
)

// Settings captures runtime configuration for the HTTP server.
type Settings struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig copies the server section of cfg.
func SettingsFromConfig(cfg config.Config) Settings {
	settings := Settings{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = config.DefaultHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = config.DefaultPort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = config.DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = config.DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = config.DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form. Port 0 asks the
// kernel for a free port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
