package gree

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig) error

type managerConfig struct {
	aliases         map[string]string
	minScanAge      time.Duration
	maxScanAge      time.Duration
	maxAttempts     int
	initialInterval time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

func defaultManagerConfig() *managerConfig {
	return &managerConfig{
		aliases:         map[string]string{},
		minScanAge:      60 * time.Second,
		maxScanAge:      24 * time.Hour,
		maxAttempts:     3,
		initialInterval: 500 * time.Millisecond,
		logger:          zap.NewNop(),
		now:             time.Now,
	}
}

// WithAliases maps friendly names to device MACs.
func WithAliases(aliases map[string]string) ManagerOption {
	return func(c *managerConfig) error {
		for alias, mac := range aliases {
			if alias == "" || mac == "" {
				return errors.New("aliases must map a non-empty name to a non-empty mac")
			}
			c.aliases[alias] = mac
		}
		return nil
	}
}

// WithScanAge sets how old the cached scan may get. A scan older than max is
// always repeated; a scan older than min is repeated when a device could not
// be found or did not answer.
// Defaults are 60 seconds and 24 hours.
func WithScanAge(minAge, maxAge time.Duration) ManagerOption {
	return func(c *managerConfig) error {
		if minAge < 0 || maxAge <= 0 || minAge > maxAge {
			return fmt.Errorf("invalid scan age range %s-%s", minAge, maxAge)
		}
		c.minScanAge = minAge
		c.maxScanAge = maxAge
		return nil
	}
}

// WithRetry sets the number of attempts per operation and the first backoff
// interval. Default is 3 attempts starting at 500ms.
func WithRetry(attempts int, initial time.Duration) ManagerOption {
	return func(c *managerConfig) error {
		if attempts < 1 {
			return errors.New("attempts must be at least 1")
		}
		if initial <= 0 {
			return errors.New("initial interval must be positive")
		}
		c.maxAttempts = attempts
		c.initialInterval = initial
		return nil
	}
}

// WithManagerLogger sets the logger used for scan and retry events.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(c *managerConfig) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
		return nil
	}
}

// Manager keeps a cache of discovered devices and their sessions, binds on
// demand and retries failed operations with exponential backoff, rescanning
// between attempts.
type Manager struct {
	c      *Client
	cfg    *managerConfig
	logger *zap.Logger

	scanMu    sync.Mutex // serializes scans
	mu        sync.Mutex // guards sessions and scannedAt
	sessions  map[string]*Session
	scannedAt time.Time
}

// NewManager wraps c. The manager does not own the client.
func NewManager(c *Client, opts ...ManagerOption) (*Manager, error) {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return &Manager{
		c:        c,
		cfg:      cfg,
		logger:   cfg.logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Scan refreshes the device cache when it is due. A forced scan only waits
// for the minimum scan age.
func (m *Manager) Scan(ctx context.Context, forced bool) error {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	m.mu.Lock()
	last := m.scannedAt
	m.mu.Unlock()

	now := m.cfg.now()
	switch {
	case last.IsZero():
	case !now.Before(last.Add(m.cfg.maxScanAge)):
	case forced && !now.Before(last.Add(m.cfg.minScanAge)):
	default:
		return nil
	}

	ids, err := m.c.Discover(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]*Session, len(ids))
	for _, id := range ids {
		if s, ok := m.sessions[id.MAC]; ok && s.Identity().Addr == id.Addr {
			next[id.MAC] = s
			continue
		}
		next[id.MAC] = NewSession(id)
	}
	m.sessions = next
	m.scannedAt = m.cfg.now()
	m.logger.Info("scan complete", zap.Int("devices", len(next)))
	return nil
}

// Devices returns the cached devices sorted by MAC.
func (m *Manager) Devices() []DeviceIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceIdentity, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Identity())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Resolve finds the cached session for target, which may be an alias, a
// MAC, a device name or an IP address.
func (m *Manager) Resolve(target string) (*Session, bool) {
	if mac, ok := m.cfg.aliases[target]; ok {
		target = mac
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[strings.ToLower(target)]; ok {
		return s, true
	}
	ip, ipErr := netip.ParseAddr(target)
	for _, s := range m.sessions {
		id := s.Identity()
		if strings.EqualFold(id.MAC, target) || id.Name == target {
			return s, true
		}
		if ipErr == nil && id.Addr.Addr() == ip {
			return s, true
		}
	}
	return nil, false
}

// Session resolves target, scanning first when the cache is stale and again
// (forced) when the target is not found.
func (m *Manager) Session(ctx context.Context, target string) (*Session, error) {
	if err := m.Scan(ctx, false); err != nil {
		return nil, err
	}
	if s, ok := m.Resolve(target); ok {
		return s, nil
	}
	if err := m.Scan(ctx, true); err != nil {
		return nil, err
	}
	if s, ok := m.Resolve(target); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, target)
}

// Bind makes sure target is bound.
func (m *Manager) Bind(ctx context.Context, target string) (*Session, error) {
	var bound *Session
	err := m.do(ctx, target, func(s *Session) error {
		bound = s
		return nil
	})
	return bound, err
}

// Read returns the values of codes on target.
func (m *Manager) Read(ctx context.Context, target string, codes []Code) (PropertySet, error) {
	var out PropertySet
	err := m.do(ctx, target, func(s *Session) error {
		var err error
		out, err = m.c.ReadStatus(ctx, s, codes)
		return err
	})
	return out, err
}

// Write applies changes on target and returns the acknowledged values.
func (m *Manager) Write(ctx context.Context, target string, changes PropertySet) (PropertySet, error) {
	if err := changes.Validate(); err != nil {
		return nil, opError("write", "", ErrValidation, err)
	}
	var out PropertySet
	err := m.do(ctx, target, func(s *Session) error {
		var err error
		out, err = m.c.WriteStatus(ctx, s, changes)
		return err
	})
	return out, err
}

// do resolves and binds target, then runs fn, retrying with backoff while
// the failure is retryable.
func (m *Manager) do(ctx context.Context, target string, fn func(*Session) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			if err := m.Scan(ctx, true); err != nil {
				return m.classify(err)
			}
		}
		s, err := m.Session(ctx, target)
		if err != nil {
			return m.classify(err)
		}
		if err := m.c.Bind(ctx, s); err != nil {
			return m.classify(err)
		}
		if err := fn(s); err != nil {
			// A unit that was power cycled issues a new key and ignores the
			// old one, which surfaces as a timeout or an undecodable reply.
			// Rebind on the next attempt.
			if errors.Is(err, ErrDecode) {
				m.forget(s)
				return err
			}
			if Retryable(err) {
				m.forget(s)
			}
			return m.classify(err)
		}
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if m.cfg.maxAttempts > 1 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = m.cfg.initialInterval
		b.MaxElapsedTime = 0
		policy = backoff.WithMaxRetries(b, uint64(m.cfg.maxAttempts-1))
	}

	return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		m.logger.Warn("operation failed, retrying",
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

func (m *Manager) classify(err error) error {
	if Retryable(err) {
		return err
	}
	return backoff.Permanent(err)
}

func (m *Manager) forget(s *Session) {
	id := s.Identity()
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[id.MAC]; ok && cur == s {
		m.sessions[id.MAC] = NewSession(id)
	}
}
