package gree

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStatus_PreservesRequestOrder(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	d.state = map[Code]int{CodePower: 1, CodeMode: ModeDry, CodeTargetTemp: 3 + MinTargetTemp}
	client := newTestClient(t, newFakeTransport(d))
	s := newBoundTestSession(t, d)

	codes := []Code{CodeTargetTemp, CodePower, CodeMode}
	status, err := client.ReadStatus(context.Background(), s, codes)
	require.NoError(t, err)

	assert.Equal(t, PropertySet{
		{Code: CodeTargetTemp, Value: 19},
		{Code: CodePower, Value: 1},
		{Code: CodeMode, Value: ModeDry},
	}, status)

	v, ok := status.Get(CodeMode)
	assert.True(t, ok)
	assert.Equal(t, ModeDry, v)
	_, ok = status.Get(CodeTurbo)
	assert.False(t, ok)
}

func TestReadStatus_LengthMismatch(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	d.truncate = true
	client := newTestClient(t, newFakeTransport(d))
	s := newBoundTestSession(t, d)

	_, err := client.ReadStatus(context.Background(), s, []Code{CodePower, CodeMode, CodeTargetTemp})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Contains(t, err.Error(), "requested 3 values, got 2")
}

func TestReadStatus_DeviceError(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	d.status = 400
	client := newTestClient(t, newFakeTransport(d))
	s := newBoundTestSession(t, d)

	_, err := client.ReadStatus(context.Background(), s, []Code{CodePower})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestReadStatus_Unbound(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	tr := newFakeTransport(d)
	client := newTestClient(t, tr)

	_, err := client.ReadStatus(context.Background(), NewSession(d.identity()), []Code{CodePower})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotBound)
	assert.Empty(t, tr.sends())
}

func TestReadStatus_RejectsUnknownCodes(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	tr := newFakeTransport(d)
	client := newTestClient(t, tr)
	s := newBoundTestSession(t, d)

	_, err := client.ReadStatus(context.Background(), s, []Code{CodePower, "Bogus"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.ReadStatus(context.Background(), s, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.ReadStatus(context.Background(), s, []Code{CodePower, CodePower})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, tr.sends())
}

func TestReadStatus_Timeout(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	d.silent = true
	logger, logs := newObservedLogger()
	client := newTestClient(t, newFakeTransport(d), WithLogger(logger))
	s := newBoundTestSession(t, d)

	_, err := client.ReadStatus(context.Background(), s, []Code{CodePower})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrBindTimeout)
	assert.True(t, Retryable(err))
	assert.Equal(t, 1, logs.FilterMessage("request timeout").Len())
}

func TestReadStatus_DiscardsUnrelatedReplies(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	other := newFakeDevice("aabbccddeeff", "10.0.0.11")
	key := d.boundKey()

	tr := newFakeTransport(d)
	tr.before = func(to netip.AddrPort, _ []byte) []Datagram {
		if to != d.addr {
			return nil
		}
		return []Datagram{
			// another unit answering someone else
			{From: other.addr, Data: other.seal(other.boundKey(), 0, map[string]any{
				"t": "dat", "mac": other.mac, "r": 200, "dat": []int{0},
			})},
			// a late command ack from the same unit
			{From: d.addr, Data: d.seal(key, 0, map[string]any{
				"t": "res", "mac": d.mac, "r": 200, "opt": []string{"Pow"}, "p": []int{0},
			})},
			// a status reply carrying a different unit identifier
			{From: d.addr, Data: other.seal(key, 0, map[string]any{
				"t": "dat", "mac": other.mac, "r": 200, "dat": []int{0},
			})},
		}
	}
	logger, logs := newObservedLogger()
	client := newTestClient(t, tr, WithLogger(logger))
	s := newBoundTestSession(t, d)

	status, err := client.ReadStatus(context.Background(), s, []Code{CodePower})
	require.NoError(t, err)
	assert.Equal(t, PropertySet{{Code: CodePower, Value: 1}}, status)
	assert.Equal(t, 2, logs.FilterMessage("datagram ignored").Len())
}

func TestReadStatus_SkipsGenericKeyPacksFromSameUnit(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")

	tr := newFakeTransport(d)
	tr.before = func(to netip.AddrPort, _ []byte) []Datagram {
		if to != d.addr {
			return nil
		}
		return []Datagram{
			// scan reply to a concurrent broadcast
			{From: d.addr, Data: d.seal(GenericKey(), 0, map[string]any{
				"t": "dev", "mac": d.mac, "name": d.name, "cid": d.mac,
			})},
			// a late bind answer
			{From: d.addr, Data: d.seal(GenericKey(), 1, map[string]any{
				"t": "bindok", "mac": d.mac, "key": d.key, "r": 200,
			})},
		}
	}
	logger, logs := newObservedLogger()
	client := newTestClient(t, tr, WithLogger(logger))
	s := newBoundTestSession(t, d)

	status, err := client.ReadStatus(context.Background(), s, []Code{CodePower})
	require.NoError(t, err)
	assert.Equal(t, PropertySet{{Code: CodePower, Value: 1}}, status)
	assert.Equal(t, 2, logs.FilterMessage("datagram ignored").Len())

	written, err := client.WriteStatus(context.Background(), s, PropertySet{{Code: CodePower, Value: 0}})
	require.NoError(t, err)
	assert.Equal(t, PropertySet{{Code: CodePower, Value: 0}}, written)
}

func TestReadStatus_OnlyUndecodableRepliesIsDecodeError(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	d.silent = true

	tr := newFakeTransport(d)
	tr.before = func(to netip.AddrPort, _ []byte) []Datagram {
		if to != d.addr {
			return nil
		}
		// sealed with a key the session does not hold
		return []Datagram{{From: d.addr, Data: d.seal(GenericKey(), 0, map[string]any{
			"t": "dat", "mac": d.mac, "r": 200, "cols": []string{"Pow"}, "dat": []int{1},
		})}}
	}
	client := newTestClient(t, tr)
	s := newBoundTestSession(t, d)

	_, err := client.ReadStatus(context.Background(), s, []Code{CodePower})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.False(t, Retryable(err))
}

func TestReadStatus_SendTimeoutIsTimeout(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	tr := &sendFailTransport{fakeTransport: newFakeTransport(d), err: fmt.Errorf("%w: send to %s", ErrTimeout, d.addr)}
	client := newTestClient(t, tr)
	s := newBoundTestSession(t, d)

	_, err := client.ReadStatus(context.Background(), s, []Code{CodePower})
	var oe *OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, ErrTimeout, oe.Kind)
}

func TestWriteStatus_Applies(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	tr := newFakeTransport(d)
	client := newTestClient(t, tr)
	s := newBoundTestSession(t, d)

	ack, err := client.WriteStatus(context.Background(), s, PropertySet{
		{Code: CodeTargetTemp, Value: 22},
		{Code: CodeMode, Value: ModeHeat},
	})
	require.NoError(t, err)
	assert.Equal(t, PropertySet{{Code: CodeTargetTemp, Value: 22}, {Code: CodeMode, Value: ModeHeat}}, ack)
	assert.Equal(t, 22, d.value(CodeTargetTemp))
	assert.Equal(t, ModeHeat, d.value(CodeMode))

	d.mu.Lock()
	last := d.requests[len(d.requests)-1]
	d.mu.Unlock()
	assert.JSONEq(t, `{"opt":["SetTem","Mod"],"p":[22,4],"t":"cmd"}`, string(last))
}

func TestWriteStatus_ValidationSendsNothing(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	tr := newFakeTransport(d)
	client := newTestClient(t, tr)
	s := newBoundTestSession(t, d)

	tests := []struct {
		name    string
		changes PropertySet
	}{
		{"temperature below range", PropertySet{{Code: CodeTargetTemp, Value: 5}}},
		{"unknown mode", PropertySet{{Code: CodeMode, Value: 9}}},
		{"read-only", PropertySet{{Code: CodeRoomTemperature, Value: 60}}},
		{"unknown code", PropertySet{{Code: "Bogus", Value: 1}}},
		{"duplicate", PropertySet{{Code: CodePower, Value: 1}, {Code: CodePower, Value: 0}}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.WriteStatus(context.Background(), s, tt.changes)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.False(t, Retryable(err))
		})
	}
	assert.Empty(t, tr.sends())
}

func TestWriteStatus_Rejected(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	d.status = 500
	client := newTestClient(t, newFakeTransport(d))
	s := newBoundTestSession(t, d)

	_, err := client.WriteStatus(context.Background(), s, PropertySet{{Code: CodePower, Value: 0}})
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, 1, d.value(CodePower))
}

func TestWriteStatus_MismatchedAck(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	d.silent = true
	tr := newFakeTransport(d)
	tr.before = func(to netip.AddrPort, _ []byte) []Datagram {
		return []Datagram{{From: d.addr, Data: d.seal(d.boundKey(), 0, map[string]any{
			"t": "res", "mac": d.mac, "r": 200, "opt": []string{"Mod"}, "p": []int{1},
		})}}
	}
	client := newTestClient(t, tr)
	s := newBoundTestSession(t, d)

	_, err := client.WriteStatus(context.Background(), s, PropertySet{{Code: CodePower, Value: 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Contains(t, err.Error(), "acknowledged Mod")
}

func TestCommands_ConcurrentDevices(t *testing.T) {
	a := newFakeDevice("f4911e7aca59", "10.0.0.10")
	b := newFakeDevice("0c12345678ab", "10.0.0.11")
	b.state[CodeTargetTemp] = 27
	client := newTestClient(t, newFakeTransport(a, b))
	sa := newBoundTestSession(t, a)
	sb := newBoundTestSession(t, b)

	var wg sync.WaitGroup
	results := make([]PropertySet, 2)
	errs := make([]error, 2)
	for i, s := range []*Session{sa, sb} {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			for n := 0; n < 10; n++ {
				results[i], errs[i] = client.ReadStatus(context.Background(), s, []Code{CodeTargetTemp})
				if errs[i] != nil {
					return
				}
			}
		}(i, s)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, PropertySet{{Code: CodeTargetTemp, Value: 24}}, results[0])
	assert.Equal(t, PropertySet{{Code: CodeTargetTemp, Value: 27}}, results[1])
}

func TestCommands_ConcurrentSameSession(t *testing.T) {
	d := newFakeDevice("f4911e7aca59", "10.0.0.10")
	client := newTestClient(t, newFakeTransport(d))
	s := newBoundTestSession(t, d)

	queries := [][]Code{{CodePower}, {CodeTargetTemp, CodeMode}, {CodeFanSpeed, CodePower, CodeTargetTemp}}
	errs := make([]error, len(queries))
	var wg sync.WaitGroup
	for i, codes := range queries {
		wg.Add(1)
		go func(i int, codes []Code) {
			defer wg.Done()
			for n := 0; n < 10; n++ {
				got, err := client.ReadStatus(context.Background(), s, codes)
				if err != nil {
					errs[i] = err
					return
				}
				for j, code := range codes {
					if got[j].Code != code || got[j].Value != d.value(code) {
						errs[i] = fmt.Errorf("query %d: got %s", i, got)
						return
					}
				}
			}
		}(i, codes)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPropertySet_Helpers(t *testing.T) {
	p := PropertySet{{Code: CodePower, Value: 1}, {Code: CodeMode, Value: ModeCool}, {Code: CodeTargetTemp, Value: 23}}
	assert.Equal(t, []Code{CodePower, CodeMode, CodeTargetTemp}, p.Codes())
	assert.Equal(t, []int{1, ModeCool, 23}, p.Values())
	assert.Equal(t, "Pow=on Mod=cool SetTem=23", p.String())
	assert.NoError(t, p.Validate())
}
