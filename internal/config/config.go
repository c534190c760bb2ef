package config

import (
	"encoding/base64"
	"fmt"
)

// DefaultPageSize is the number of messages returned per history page.
const DefaultPageSize = 20

type Config struct {
	ServerAddr        string
	DatabaseDSN       string
	SigningKey        []byte
	AllowedOrigins    []string
	PageSize          int
	RequireMembership bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, pageSize int, requireMembership bool) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Config{
		ServerAddr:        serverAddr,
		DatabaseDSN:       databaseDSN,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		PageSize:          pageSize,
		RequireMembership: requireMembership,
	}, nil
}
