// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`

	// Packet-forwarder UDP listeners
	UplinkAddr   string `env:"UPLINK_ADDR" envDefault:":1730"`
	DownlinkAddr string `env:"DOWNLINK_ADDR" envDefault:":1700"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache and event stream (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// MQTT broker
	MQTTHost           string `env:"MQTT_HOST,required"`
	MQTTPort           int    `env:"MQTT_PORT" envDefault:"1883"`
	MQTTUsername       string `env:"MQTT_USERNAME"`
	MQTTPassword       string `env:"MQTT_PASSWORD"`
	MQTTUseTLS         bool   `env:"MQTT_TLS" envDefault:"false"`
	MQTTPublishTopic   string `env:"MQTT_PUBLISH_TOPIC" envDefault:"lns/up"`
	MQTTSubscribeTopic string `env:"MQTT_SUBSCRIBE_TOPIC" envDefault:"lns/down"`

	// Device registry
	RegistryURL             string        `env:"REGISTRY_URL,required"`
	RegistryToken           string        `env:"REGISTRY_TOKEN"`
	RegistryRefreshInterval time.Duration `env:"REGISTRY_REFRESH_INTERVAL" envDefault:"60s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load parses environment variables and returns a Config.
// A .env file in the working directory is applied first when present;
// real environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
