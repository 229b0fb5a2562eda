package config

import (
	"fmt"
	"os"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	// IssuerURL is the external base URL of this service, used as the JWT
	// issuer and in the discovery document.
	IssuerURL   string
	LogLevel    string
	ServiceName string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8090"),
		IssuerURL:      getEnv("ISSUER_URL", "http://localhost:8090"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ServiceName:    getEnv("SERVICE_NAME", "platform-api"),
	}

	return cfg, nil
}

// Validate checks that the fields the service cannot run without are set.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IssuerURL == "" {
		return fmt.Errorf("ISSUER_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
