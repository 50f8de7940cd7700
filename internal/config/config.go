// Package config loads client and server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client configures cmd/client.
type Client struct {
	ServerURL        string        `env:"CHAT_SERVER_URL" envDefault:"http://localhost:8080"`
	SocketPath       string        `env:"CHAT_SOCKET_PATH" envDefault:"/socket"`
	WireFormat       string        `env:"CHAT_WIRE_FORMAT" envDefault:"json"`
	RequestTimeout   time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"10s"`
	TypingTimeout    time.Duration `env:"CHAT_TYPING_TIMEOUT" envDefault:"3s"`
	NoticeTTL        time.Duration `env:"CHAT_NOTICE_TTL" envDefault:"5s"`
	ReconnectInitial time.Duration `env:"CHAT_RECONNECT_INITIAL" envDefault:"500ms"`
	ReconnectMax     time.Duration `env:"CHAT_RECONNECT_MAX" envDefault:"30s"`
	DialTimeout      time.Duration `env:"CHAT_DIAL_TIMEOUT" envDefault:"5s"`
}

// SocketURL derives the realtime endpoint from the HTTP server url.
func (c Client) SocketURL() string {
	u := strings.TrimSuffix(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + c.SocketPath
}

// Server configures cmd/server.
type Server struct {
	Addr       string `env:"CHAT_LISTEN_ADDR" envDefault:"localhost:8080"`
	WireFormat string `env:"CHAT_WIRE_FORMAT" envDefault:"json"`
	// PasswordCost is the bcrypt cost for stored passwords.
	PasswordCost int `env:"CHAT_PASSWORD_COST" envDefault:"10"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
