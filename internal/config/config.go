package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// DefaultPingInterval is how often the server runs a reap pass
	// followed by a ping pass over all live subscriptions.
	DefaultPingInterval = 30 * time.Second
	// DefaultPongTimeout is how long a subscription may go without a
	// pong before it is considered dead and reaped.
	DefaultPongTimeout = 90 * time.Second
	// DefaultAwayTimeout is how long a connected user may go without
	// an activity signal before their presence degrades to away.
	DefaultAwayTimeout = 5 * time.Minute
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	PingInterval   time.Duration
	PongTimeout    time.Duration
	AwayTimeout    time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		AwayTimeout:    DefaultAwayTimeout,
	}, nil
}
