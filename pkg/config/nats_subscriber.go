package config

import (
	"fmt"
	"strings"
	"time"
)

// SubscriberConfig tunes the consumer that feeds realtime events from other instances
// into the local hub. Stream and subjects come from NATSConfig.
type SubscriberConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Batch             int           `koanf:"batch"`
	Timeout           time.Duration `koanf:"timeout"`
	Interval          time.Duration `koanf:"interval"`
	InactiveThreshold time.Duration `koanf:"inactivethreshold"`
}

func (c *SubscriberConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS Subscriber ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled))
	b.WriteString(fmt.Sprintf("  batch: %d\n", c.Batch))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  interval: %s\n", c.Interval))
	b.WriteString(fmt.Sprintf("  inactivethreshold: %s\n", c.InactiveThreshold))
	return b.String()
}

func (c *SubscriberConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Batch <= 0 {
		return fmt.Errorf("SubscriberConfig: batch must be greater than zero")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("SubscriberConfig: timeout must be greater than zero")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("SubscriberConfig: interval must be greater than zero")
	}
	if c.InactiveThreshold <= 0 {
		return fmt.Errorf("SubscriberConfig: inactive threshold must be greater than zero")
	}
	return nil
}
