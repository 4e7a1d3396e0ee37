package gree

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPTransport_Loopback(t *testing.T) {
	a, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, a.Send(ctx, b.LocalAddr(), []byte(`{"t":"scan"}`)))
	dg, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"t":"scan"}`, string(dg.Data))
	assert.Equal(t, a.LocalAddr(), dg.From)
}

func TestUDPTransport_ReceiveTimeout(t *testing.T) {
	tr, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = tr.Receive(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUDPTransport_ReceiveCanceled(t *testing.T) {
	tr, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = tr.Receive(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestListenUDP_InvalidAddr(t *testing.T) {
	_, err := ListenUDP("nowhere")
	assert.ErrorIs(t, err, ErrIO)
}

func TestClient_OverUDP(t *testing.T) {
	unit, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer unit.Close()

	d := newFakeDevice("f4911e7aca59", "127.0.0.1")
	d.addr = unit.LocalAddr()
	go func() {
		for {
			dg, err := unit.Receive(context.Background())
			if err != nil {
				return
			}
			for _, reply := range d.handle(dg.Data) {
				_ = unit.Send(context.Background(), dg.From, reply)
			}
		}
	}()

	client, err := NewClient(WithLocalAddr("127.0.0.1:0"), WithRequestTimeout(time.Second))
	require.NoError(t, err)
	defer client.Close()

	s := NewSession(DeviceIdentity{Addr: unit.LocalAddr(), MAC: d.mac})
	require.NoError(t, client.Bind(context.Background(), s))

	status, err := client.ReadStatus(context.Background(), s, []Code{CodeTargetTemp})
	require.NoError(t, err)
	assert.Equal(t, PropertySet{{Code: CodeTargetTemp, Value: 24}}, status)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), s.Identity().Addr.Addr())
}
