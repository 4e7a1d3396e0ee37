package gree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// BindState is the binding state of a Session.
type BindState int

const (
	// Unbound sessions hold the generic key and cannot issue commands.
	Unbound BindState = iota
	// Bound sessions hold the device key. The state is final.
	Bound
)

func (s BindState) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	default:
		return fmt.Sprintf("BindState(%d)", int(s))
	}
}

// Session tracks the key and binding state of one device. Operations on a
// session are serialized so that each request consumes exactly its own
// reply.
type Session struct {
	id DeviceIdentity

	op sync.Mutex // held for the duration of a network operation

	mu    sync.Mutex // guards key and state
	key   Key
	state BindState
}

// NewSession starts an unbound session for a discovered device.
func NewSession(id DeviceIdentity) *Session {
	return &Session{id: id, key: GenericKey(), state: Unbound}
}

// NewBoundSession restores a session from a device key obtained earlier,
// skipping the bind exchange.
func NewBoundSession(id DeviceIdentity, key Key) (*Session, error) {
	if key.Kind() != KeyBound {
		return nil, fmt.Errorf("%w: %s key cannot bind a session", ErrValidation, key.Kind())
	}
	if key.MAC() != "" && key.MAC() != id.MAC {
		return nil, fmt.Errorf("%w: key belongs to %s, not %s", ErrValidation, key.MAC(), id.MAC)
	}
	return &Session{id: id, key: key, state: Bound}, nil
}

// Identity returns the device the session talks to.
func (s *Session) Identity() DeviceIdentity { return s.id }

// State returns the current binding state.
func (s *Session) State() BindState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Key returns the key currently held by the session.
func (s *Session) Key() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// dataKey returns the key for status and command traffic.
func (s *Session) dataKey() (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Bound:
		return s.key, nil
	case Unbound:
		return Key{}, ErrNotBound
	default:
		panic(fmt.Sprintf("gree: invalid bind state %d", s.state))
	}
}

func (s *Session) install(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.state = Bound
}

// Bind obtains the device key for s. A bound session is left untouched.
// When the device does not answer in time the error matches ErrBindTimeout
// and the session stays Unbound; every attempt starts from scratch.
func (c *Client) Bind(ctx context.Context, s *Session) error {
	s.op.Lock()
	defer s.op.Unlock()

	if s.State() == Bound {
		return nil
	}
	id := s.Identity()
	generic := GenericKey()

	req, err := encodeRequest(generic, id.MAC, requestIndexBind, bindRequest{
		MAC: id.MAC,
		T:   packBindRequest,
		UID: 0,
	})
	if err != nil {
		return opError("bind", id.MAC, ErrProtocol, err)
	}

	raw, err := c.exchange(ctx, "bind", id, generic, req, packBind)
	if err != nil {
		var oe *OpError
		if errors.As(err, &oe) && oe.Kind == ErrTimeout {
			oe.Kind = ErrBindTimeout
		}
		c.logger.Warn("bind failed", zap.String("mac", id.MAC), zap.Error(err))
		return err
	}

	reply, err := decodeAs[*BindReply](raw)
	if err != nil {
		return opError("bind", id.MAC, ErrProtocol, err)
	}
	// Older firmware omits r on bindok.
	if reply.R != 0 && reply.R != StatusOK {
		return opError("bind", id.MAC, ErrProtocol, fmt.Errorf("status %d", reply.R))
	}
	key, err := NewBoundKey(id.MAC, reply.Key)
	if err != nil {
		return opError("bind", id.MAC, ErrProtocol, err)
	}

	s.install(key)
	c.logger.Info("device bound", zap.String("mac", id.MAC), zap.Stringer("addr", id.Addr))
	return nil
}
