// Package config holds the storefront service configuration.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer     config.HTTPConfig           `koanf:"server"`
	Database       config.DatabaseConfig       `koanf:"database"`
	Log            config.LogConfig            `koanf:"log"`
	PProf          config.PProfConfig          `koanf:"pprof"`
	Nats           config.NATSConfig           `koanf:"nats"`
	Subscriber     config.SubscriberConfig     `koanf:"subscriber"`
	Redis          config.RedisConfig          `koanf:"redis"`
	CircuitBreaker config.CircuitBreakerConfig `koanf:"circuitbreaker"`
	Telemetry      config.TelemetryConfig      `koanf:"telemetry"`
	Shutdown       config.ShutdownConfig       `koanf:"shutdown"`
	App            AppConfig                   `koanf:"app"`
	Realtime       RealtimeConfig              `koanf:"realtime"`
}

// AppConfig carries settings of the storefront itself.
type AppConfig struct {
	// BaseURL prefixes the navigation links of paginated product queries.
	BaseURL string `koanf:"baseurl"`
}

func (c *AppConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- App ---\n")
	b.WriteString(fmt.Sprintf("  baseurl: %s\n", c.BaseURL))
	return b.String()
}

func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("app.baseurl must be an absolute URL: %q", c.BaseURL)
	}
	return nil
}

// RealtimeConfig tunes WebSocket connections and the broker relay.
type RealtimeConfig struct {
	SendBuffer     int           `koanf:"sendbuffer"`
	WriteTimeout   time.Duration `koanf:"writetimeout"`
	PingInterval   time.Duration `koanf:"pinginterval"`
	ReadLimit      int64         `koanf:"readlimit"`
	PublishTimeout time.Duration `koanf:"publishtimeout"`
}

func (c *RealtimeConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Realtime ---\n")
	b.WriteString(fmt.Sprintf("  sendbuffer: %d\n", c.SendBuffer))
	b.WriteString(fmt.Sprintf("  writetimeout: %s\n", c.WriteTimeout))
	b.WriteString(fmt.Sprintf("  pinginterval: %s\n", c.PingInterval))
	b.WriteString(fmt.Sprintf("  readlimit: %d\n", c.ReadLimit))
	b.WriteString(fmt.Sprintf("  publishtimeout: %s\n", c.PublishTimeout))
	return b.String()
}

func (c *RealtimeConfig) Validate() error {
	if c.SendBuffer <= 0 {
		return fmt.Errorf("realtime.sendbuffer must be greater than 0")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("realtime.writetimeout must be greater than 0")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("realtime.pinginterval must be greater than 0")
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("realtime.readlimit must be greater than 0")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("realtime.publishtimeout must be greater than 0")
	}
	return nil
}

// Defaults are loaded before config.yaml, .env and the environment.
func Defaults() map[string]any {
	return map[string]any{
		"server.port":                        8080,
		"server.maxHeaderBytes":              1 << 20,
		"server.timeout.read":                "10s",
		"server.timeout.write":               "10s",
		"server.timeout.idle":                "60s",
		"server.timeout.readHeader":          "5s",
		"database.driver":                    config.DriverMemory,
		"database.timeout":                   "10s",
		"log.level":                          "info",
		"nats.stream":                        "STOREFRONT",
		"nats.subjectprefix":                 "storefront.realtime",
		"nats.timeout":                       "5s",
		"subscriber.batch":                   10,
		"subscriber.timeout":                 "1s",
		"subscriber.interval":                "500ms",
		"subscriber.inactivethreshold":       "5m",
		"redis.keyttl":                       "24h",
		"redis.timeout":                      "5s",
		"circuitbreaker.consecutivefailures": 5,
		"circuitbreaker.errorratepercent":    50,
		"circuitbreaker.opentimeout":         "30s",
		"circuitbreaker.maxhalfopenrequests": 1,
		"shutdown.timeout":                   "10s",
		"app.baseurl":                        "http://localhost:8080",
		"realtime.sendbuffer":                64,
		"realtime.writetimeout":              "10s",
		"realtime.pinginterval":              "54s",
		"realtime.readlimit":                 64 * 1024,
		"realtime.publishtimeout":            "2s",
	}
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Database.String())
	b.WriteString(c.Redis.String())
	b.WriteString(c.Nats.String())
	b.WriteString(c.Subscriber.String())
	b.WriteString(c.CircuitBreaker.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	b.WriteString(c.App.String())
	b.WriteString(c.Realtime.String())
	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer,
		&c.Database,
		&c.Log,
		&c.PProf,
		&c.Nats,
		&c.Subscriber,
		&c.Redis,
		&c.CircuitBreaker,
		&c.Telemetry,
		&c.Shutdown,
		&c.App,
		&c.Realtime,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Subscriber.Enabled && !c.Nats.Enabled {
		return fmt.Errorf("subscriber requires nats to be enabled")
	}
	return nil
}
