package gree

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeDevice answers scan, bind, status and command requests the way a
// unit does.
type fakeDevice struct {
	mu sync.Mutex

	mac  string
	name string
	addr netip.AddrPort
	key  string
	// state holds the current property values.
	state map[Code]int

	scanRepeats int  // scan replies per broadcast, default 1
	silent      bool // ignore everything except scans
	drop        int  // ignore the next n non-scan requests
	truncate    bool // reply with one value less than requested
	status      int  // "r" on status and command replies, default 200
	requests    []json.RawMessage
}

func newFakeDevice(mac, ip string) *fakeDevice {
	return &fakeDevice{
		mac:   mac,
		name:  "unit-" + mac[len(mac)-4:],
		addr:  netip.AddrPortFrom(netip.MustParseAddr(ip), DefaultPort),
		key:   "Bq3Zl9Xx6Pc8Ki2W",
		state: map[Code]int{CodePower: 1, CodeMode: ModeCool, CodeTargetTemp: 24, CodeFanSpeed: FanAuto},
	}
}

func (d *fakeDevice) identity() DeviceIdentity {
	return DeviceIdentity{Addr: d.addr, MAC: d.mac, Name: d.name}
}

func (d *fakeDevice) boundKey() Key {
	k, err := NewBoundKey(d.mac, d.key)
	if err != nil {
		panic(err)
	}
	return k
}

func (d *fakeDevice) value(code Code) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state[code]
}

// seal wraps pack into a reply envelope from d.
func (d *fakeDevice) seal(key Key, index int, pack any) []byte {
	sealed, err := Encrypt(key, pack)
	if err != nil {
		panic(err)
	}
	data, err := json.Marshal(Envelope{CID: d.mac, I: index, Pack: sealed, T: envelopeTypePack})
	if err != nil {
		panic(err)
	}
	return data
}

func (d *fakeDevice) handle(data []byte) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if string(data) == string(scanRequest) {
		var out [][]byte
		for i := 0; i < max(1, d.scanRepeats); i++ {
			out = append(out, d.seal(GenericKey(), 0, map[string]any{
				"t": "dev", "cid": "", "bc": "", "brand": "gree", "catalog": "gree",
				"mac": d.mac, "mid": "10001", "model": "gree", "name": d.name,
				"series": "gnod", "vender": "1", "ver": "V1.1.13", "lock": 0,
			}))
		}
		return out
	}

	env, err := DecodeEnvelope(data)
	if err != nil || env.TCID != d.mac {
		return nil
	}
	if d.silent {
		return nil
	}
	if d.drop > 0 {
		d.drop--
		return nil
	}

	r := d.status
	if r == 0 {
		r = StatusOK
	}

	if env.I == requestIndexBind {
		raw, err := Decrypt(GenericKey(), env.Pack)
		if err != nil {
			return nil
		}
		d.requests = append(d.requests, raw)
		return [][]byte{d.seal(GenericKey(), requestIndexBind, map[string]any{
			"t": "bindok", "mac": d.mac, "key": d.key, "r": StatusOK,
		})}
	}

	bound, _ := NewBoundKey(d.mac, d.key)
	raw, err := Decrypt(bound, env.Pack)
	if err != nil {
		return nil
	}
	d.requests = append(d.requests, raw)

	var req struct {
		T    string `json:"t"`
		Cols []Code `json:"cols"`
		Opt  []Code `json:"opt"`
		P    []int  `json:"p"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	switch req.T {
	case packStatusRequest:
		dat := make([]int, 0, len(req.Cols))
		for _, c := range req.Cols {
			dat = append(dat, d.state[c])
		}
		if d.truncate && len(dat) > 0 {
			dat = dat[:len(dat)-1]
		}
		return [][]byte{d.seal(bound, 0, map[string]any{
			"t": "dat", "mac": d.mac, "r": r, "cols": req.Cols, "dat": dat,
		})}
	case packCommandRequest:
		if r == StatusOK {
			for i, c := range req.Opt {
				d.state[c] = req.P[i]
			}
		}
		return [][]byte{d.seal(bound, 0, map[string]any{
			"t": "res", "mac": d.mac, "r": r, "opt": req.Opt, "p": req.P, "val": req.P,
		})}
	}
	return nil
}

type sentDatagram struct {
	To   netip.AddrPort
	Data []byte
}

// fakeTransport routes sends to fake devices and plays their replies back
// through Receive.
type fakeTransport struct {
	mu      sync.Mutex
	devices []*fakeDevice
	sent    []sentDatagram
	// before, when set, yields datagrams delivered ahead of device replies.
	before func(to netip.AddrPort, data []byte) []Datagram

	inbox     chan Datagram
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport(devices ...*fakeDevice) *fakeTransport {
	return &fakeTransport{
		devices: devices,
		inbox:   make(chan Datagram, 256),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, to netip.AddrPort, data []byte) error {
	select {
	case <-f.closed:
		return fmt.Errorf("%w: %w", ErrIO, net.ErrClosed)
	default:
	}

	f.mu.Lock()
	f.sent = append(f.sent, sentDatagram{To: to, Data: append([]byte(nil), data...)})
	before := f.before
	devices := append([]*fakeDevice(nil), f.devices...)
	f.mu.Unlock()

	if before != nil {
		for _, dg := range before(to, data) {
			f.inbox <- dg
		}
	}
	broadcast := to.Addr().Is4() && to.Addr().As4()[3] == 255
	for _, d := range devices {
		if !broadcast && to.Addr() != d.addr.Addr() {
			continue
		}
		for _, reply := range d.handle(data) {
			f.inbox <- Datagram{From: d.addr, Data: reply}
		}
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (Datagram, error) {
	select {
	case dg := <-f.inbox:
		return dg, nil
	case <-f.closed:
		return Datagram{}, fmt.Errorf("%w: %w", ErrIO, net.ErrClosed)
	case <-ctx.Done():
		return Datagram{}, fmt.Errorf("%w: receive", ErrTimeout)
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) sends() []sentDatagram {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentDatagram(nil), f.sent...)
}

func (f *fakeTransport) inject(from netip.AddrPort, data []byte) {
	f.inbox <- Datagram{From: from, Data: data}
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func newTestClient(t *testing.T, tr Transport, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{
		WithTransport(tr),
		WithRequestTimeout(200 * time.Millisecond),
		WithDiscoveryWindow(100 * time.Millisecond),
	}
	c, err := NewClient(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// newBoundTestSession returns a session already holding d's key.
func newBoundTestSession(t *testing.T, d *fakeDevice) *Session {
	t.Helper()
	s, err := NewBoundSession(d.identity(), d.boundKey())
	require.NoError(t, err)
	return s
}
