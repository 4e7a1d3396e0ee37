package gree

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"go.uber.org/zap"
)

// DefaultBroadcast is the limited broadcast address used for discovery.
var DefaultBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// ClientOption configures a Client.
type ClientOption func(*clientConfig) error

// clientConfig holds the configuration for a Client.
type clientConfig struct {
	transport       Transport
	localAddr       string
	port            int
	broadcast       netip.Addr
	requestTimeout  time.Duration
	discoveryWindow time.Duration
	maxDevices      int
	logger          *zap.Logger
}

// defaultConfig returns the default client configuration.
func defaultConfig() *clientConfig {
	return &clientConfig{
		localAddr:       "0.0.0.0:0",
		port:            DefaultPort,
		broadcast:       DefaultBroadcast,
		requestTimeout:  3 * time.Second,
		discoveryWindow: 3 * time.Second,
		maxDevices:      0,
		logger:          zap.NewNop(),
	}
}

// WithTransport replaces the UDP socket the client would otherwise open.
// The client takes ownership and closes it on Close.
func WithTransport(t Transport) ClientOption {
	return func(c *clientConfig) error {
		if t == nil {
			return errors.New("transport must not be nil")
		}
		c.transport = t
		return nil
	}
}

// WithLocalAddr sets the address the UDP socket binds to.
// Default is "0.0.0.0:0".
func WithLocalAddr(addr string) ClientOption {
	return func(c *clientConfig) error {
		ap, err := netip.ParseAddrPort(addr)
		if err != nil {
			return fmt.Errorf("local address: %w", err)
		}
		if !ap.Addr().Is4() {
			return errors.New("local address must be IPv4")
		}
		c.localAddr = addr
		return nil
	}
}

// WithPort sets the device UDP port.
// Default is 7000.
func WithPort(port int) ClientOption {
	return func(c *clientConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		c.port = port
		return nil
	}
}

// WithBroadcastAddr sets the address scans are sent to, typically the
// directed broadcast of the local subnet (e.g. "192.168.1.255").
// Default is 255.255.255.255.
func WithBroadcastAddr(addr string) ClientOption {
	return func(c *clientConfig) error {
		a, err := netip.ParseAddr(addr)
		if err != nil {
			return fmt.Errorf("broadcast address: %w", err)
		}
		if !a.Is4() {
			return errors.New("broadcast address must be IPv4")
		}
		c.broadcast = a
		return nil
	}
}

// WithRequestTimeout bounds each request/reply exchange. A context deadline
// can only shorten it.
// Default is 3 seconds.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// WithDiscoveryWindow sets how long Discover collects replies.
// Default is 3 seconds.
func WithDiscoveryWindow(d time.Duration) ClientOption {
	return func(c *clientConfig) error {
		if d <= 0 {
			return errors.New("discovery window must be positive")
		}
		c.discoveryWindow = d
		return nil
	}
}

// WithMaxDevices ends discovery early once n distinct devices replied.
// Zero, the default, means no limit.
func WithMaxDevices(n int) ClientOption {
	return func(c *clientConfig) error {
		if n < 0 {
			return errors.New("max devices must not be negative")
		}
		c.maxDevices = n
		return nil
	}
}

// WithLogger sets the logger for debug and error logging.
// By default, no logging is performed.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *clientConfig) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
		return nil
	}
}
