package config

import (
	"fmt"
	"strings"
	"time"
)

// NATSConfig points the storefront at the JetStream stream that carries product and
// message events between instances. Leave it disabled for a single instance.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Url           string        `koanf:"url"`
	Timeout       time.Duration `koanf:"timeout"`
	Stream        string        `koanf:"stream"`
	SubjectPrefix string        `koanf:"subjectprefix"`
}

func (c *NATSConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled))
	b.WriteString(fmt.Sprintf("  url: %s\n", c.Url))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  stream: %s\n", c.Stream))
	b.WriteString(fmt.Sprintf("  subjectprefix: %s\n", c.SubjectPrefix))
	return b.String()
}

func (c *NATSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Url == "" {
		return fmt.Errorf("NATS URL is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("nats dial timeout is not configured")
	}
	if c.Stream == "" {
		return fmt.Errorf("NATS stream is not configured")
	}
	if c.SubjectPrefix == "" {
		return fmt.Errorf("NATS subject prefix is not configured")
	}
	return nil
}
