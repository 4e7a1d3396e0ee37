package config

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/zberg/go-gree/pkg/gree"
	"go.uber.org/zap"
)

// CurrentVersion is the only config file version understood.
const CurrentVersion = 1

// Config is the on-disk CLI configuration. Zero values mean "use the library
// default". Device keys are never stored.
type Config struct {
	Version         int               `yaml:"version"`
	Broadcast       string            `yaml:"broadcast,omitempty"`
	Port            int               `yaml:"port,omitempty"`
	LocalAddr       string            `yaml:"local_addr,omitempty"`
	RequestTimeout  time.Duration     `yaml:"request_timeout,omitempty"`
	DiscoveryWindow time.Duration     `yaml:"discovery_window,omitempty"`
	MaxDevices      int               `yaml:"max_devices,omitempty"`
	LogLevel        string            `yaml:"log_level,omitempty"`
	Aliases         map[string]string `yaml:"aliases,omitempty"` // alias -> mac
	Retry           Retry             `yaml:"retry,omitempty"`
	Scan            Scan              `yaml:"scan,omitempty"`
}

// Retry configures caller-level retries.
type Retry struct {
	MaxAttempts     int           `yaml:"max_attempts,omitempty"`
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
}

// Scan configures the device cache age limits.
type Scan struct {
	MinAge time.Duration `yaml:"min_age,omitempty"`
	MaxAge time.Duration `yaml:"max_age,omitempty"`
}

// New returns an empty configuration at the current version.
func New() *Config {
	return &Config{
		Version: CurrentVersion,
		Aliases: make(map[string]string),
	}
}

// Validate checks the fields that the library options would reject anyway,
// so errors point at the file rather than at an option.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Broadcast != "" {
		if _, err := netip.ParseAddr(c.Broadcast); err != nil {
			return fmt.Errorf("broadcast: %w", err)
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.RequestTimeout < 0 || c.DiscoveryWindow < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.MaxDevices < 0 {
		return errors.New("max_devices must not be negative")
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.InitialInterval < 0 {
		return errors.New("retry settings must not be negative")
	}
	if c.Scan.MinAge < 0 || c.Scan.MaxAge < 0 {
		return errors.New("scan ages must not be negative")
	}
	for alias, mac := range c.Aliases {
		if err := validateAlias(alias, mac); err != nil {
			return err
		}
	}
	return nil
}

func validateAlias(alias, mac string) error {
	if alias == "" || strings.ContainsAny(alias, " \t=") {
		return fmt.Errorf("invalid alias %q", alias)
	}
	if len(mac) != 12 || strings.Trim(strings.ToLower(mac), "0123456789abcdef") != "" {
		return fmt.Errorf("alias %s: %q is not a 12 digit hex mac", alias, mac)
	}
	return nil
}

// SetAlias adds or replaces an alias.
func (c *Config) SetAlias(alias, mac string) error {
	mac = strings.ToLower(mac)
	if err := validateAlias(alias, mac); err != nil {
		return err
	}
	if c.Aliases == nil {
		c.Aliases = make(map[string]string)
	}
	c.Aliases[alias] = mac
	return nil
}

// RemoveAlias deletes an alias and reports whether it existed.
func (c *Config) RemoveAlias(alias string) bool {
	if _, ok := c.Aliases[alias]; !ok {
		return false
	}
	delete(c.Aliases, alias)
	return true
}

// AliasNames returns the aliases sorted by name.
func (c *Config) AliasNames() []string {
	names := make([]string, 0, len(c.Aliases))
	for name := range c.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientOptions converts the file settings into client options. Unset fields
// are left to the library defaults.
func (c *Config) ClientOptions(logger *zap.Logger) []gree.ClientOption {
	opts := []gree.ClientOption{gree.WithLogger(logger)}
	if c.Broadcast != "" {
		opts = append(opts, gree.WithBroadcastAddr(c.Broadcast))
	}
	if c.Port != 0 {
		opts = append(opts, gree.WithPort(c.Port))
	}
	if c.LocalAddr != "" {
		opts = append(opts, gree.WithLocalAddr(c.LocalAddr))
	}
	if c.RequestTimeout != 0 {
		opts = append(opts, gree.WithRequestTimeout(c.RequestTimeout))
	}
	if c.DiscoveryWindow != 0 {
		opts = append(opts, gree.WithDiscoveryWindow(c.DiscoveryWindow))
	}
	if c.MaxDevices != 0 {
		opts = append(opts, gree.WithMaxDevices(c.MaxDevices))
	}
	return opts
}

// ManagerOptions converts the file settings into manager options.
func (c *Config) ManagerOptions(logger *zap.Logger) []gree.ManagerOption {
	opts := []gree.ManagerOption{
		gree.WithManagerLogger(logger),
		gree.WithAliases(c.Aliases),
	}
	if c.Retry.MaxAttempts != 0 || c.Retry.InitialInterval != 0 {
		attempts, interval := c.Retry.MaxAttempts, c.Retry.InitialInterval
		if attempts == 0 {
			attempts = 3
		}
		if interval == 0 {
			interval = 500 * time.Millisecond
		}
		opts = append(opts, gree.WithRetry(attempts, interval))
	}
	if c.Scan.MinAge != 0 || c.Scan.MaxAge != 0 {
		minAge, maxAge := c.Scan.MinAge, c.Scan.MaxAge
		if maxAge == 0 {
			maxAge = 24 * time.Hour
		}
		opts = append(opts, gree.WithScanAge(minAge, maxAge))
	}
	return opts
}
