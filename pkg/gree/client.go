package gree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client talks to Gree units on the local network over one UDP socket.
// It is safe for concurrent use; requests on the same Session are
// serialized, requests on different sessions run in parallel.
type Client struct {
	t      Transport
	cfg    *clientConfig
	logger *zap.Logger

	mu       sync.Mutex
	subs     map[uint64]*subscription
	nextSub  uint64
	isClosed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// subscription receives every datagram its filter accepts.
type subscription struct {
	accept func(Datagram) bool
	ch     chan Datagram
}

// NewClient opens the UDP socket (unless WithTransport is given) and starts
// receiving.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	t := cfg.transport
	if t == nil {
		udp, err := ListenUDP(cfg.localAddr)
		if err != nil {
			return nil, err
		}
		cfg.logger.Debug("socket opened", zap.Stringer("local", udp.LocalAddr()))
		t = udp
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		t:      t,
		cfg:    cfg,
		logger: cfg.logger,
		subs:   make(map[uint64]*subscription),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c, nil
}

// Close stops receiving and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil
	}
	c.isClosed = true
	c.mu.Unlock()

	c.cancel()
	err := c.t.Close()
	<-c.done
	c.logger.Debug("client closed")
	return err
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		dg, err := c.t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if errors.Is(err, ErrTimeout) {
				continue
			}
			c.logger.Warn("receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		c.logger.Debug("datagram received", zap.Stringer("from", dg.From), zap.Int("len", len(dg.Data)))
		c.dispatch(dg)
	}
}

func (c *Client) dispatch(dg Datagram) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delivered := false
	for _, s := range c.subs {
		if !s.accept(dg) {
			continue
		}
		select {
		case s.ch <- dg:
			delivered = true
		default:
			c.logger.Warn("subscriber queue full, datagram dropped", zap.Stringer("from", dg.From))
		}
	}
	if !delivered {
		c.logger.Debug("unsolicited datagram discarded", zap.Stringer("from", dg.From))
	}
}

// subscribe registers a filter. It must be called before the request is
// sent so the reply cannot be missed.
func (c *Client) subscribe(size int, accept func(Datagram) bool) (<-chan Datagram, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return nil, nil, fmt.Errorf("%w: client closed", ErrIO)
	}
	id := c.nextSub
	c.nextSub++
	s := &subscription{accept: accept, ch: make(chan Datagram, size)}
	c.subs[id] = s
	return s.ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}, nil
}

// exchange sends request to the device and waits for the reply of type
// expect, discarding anything else the device address sends meanwhile.
func (c *Client) exchange(ctx context.Context, op string, id DeviceIdentity, key Key, request []byte, expect string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.requestTimeout)
	defer cancel()

	replies, unsubscribe, err := c.subscribe(8, func(dg Datagram) bool {
		return dg.From.Addr() == id.Addr.Addr()
	})
	if err != nil {
		return nil, opError(op, id.MAC, ErrIO, err)
	}
	defer unsubscribe()

	if err := c.t.Send(ctx, id.Addr, request); err != nil {
		c.logger.Error("failed to send request", zap.String("op", op), zap.String("mac", id.MAC), zap.Error(err))
		return nil, opError(op, id.MAC, sendErrorKind(err), err)
	}
	c.logger.Debug("request sent", zap.String("op", op), zap.String("mac", id.MAC), zap.Stringer("to", id.Addr))

	// Packs that do not open with key are skipped; if nothing else arrives
	// the last such failure is reported instead of a plain timeout.
	var undecodable error
	for {
		select {
		case <-ctx.Done():
			if undecodable != nil {
				c.logger.Warn("no decodable reply", zap.String("op", op), zap.String("mac", id.MAC), zap.Error(undecodable))
				return nil, opError(op, id.MAC, ErrDecode, undecodable)
			}
			c.logger.Warn("request timeout", zap.String("op", op), zap.String("mac", id.MAC))
			return nil, opError(op, id.MAC, ErrTimeout, ctx.Err())
		case dg := <-replies:
			raw, err := openReply(key, id.MAC, dg, expect)
			switch {
			case err == nil:
				c.logger.Debug("reply received", zap.String("op", op), zap.String("mac", id.MAC))
				return raw, nil
			case errors.Is(err, errUnsolicited):
				if errors.Is(err, ErrDecode) {
					undecodable = err
				}
				c.logger.Debug("datagram ignored", zap.String("op", op), zap.String("mac", id.MAC), zap.Error(err))
			default:
				return nil, opError(op, id.MAC, ErrProtocol, err)
			}
		}
	}
}

// sendErrorKind classifies a transport send failure.
func sendErrorKind(err error) error {
	if errors.Is(err, ErrTimeout) {
		return ErrTimeout
	}
	return ErrIO
}
