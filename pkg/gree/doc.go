// Package gree provides a client for Gree (EWPE Smart) air conditioners
// on the local network over UDP.
//
// # Basic Usage
//
//	client, err := gree.NewClient()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	devices, err := client.Discover(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session := gree.NewSession(devices[0])
//	if err := client.Bind(ctx, session); err != nil {
//	    log.Fatal(err)
//	}
//
//	status, err := client.ReadStatus(ctx, session, []gree.Code{gree.CodePower, gree.CodeTargetTemp})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	_, err = client.WriteStatus(ctx, session, gree.PropertySet{
//	    {Code: gree.CodeTargetTemp, Value: 24},
//	})
//
// # Configuration
//
// The client can be configured using functional options:
//
//	client, err := gree.NewClient(
//	    gree.WithBroadcastAddr("192.168.1.255"),
//	    gree.WithRequestTimeout(5*time.Second),
//	    gree.WithLogger(logger),
//	)
//
// # Errors
//
// Every network operation returns an *OpError whose kind is one of ErrIO,
// ErrTimeout, ErrDecode, ErrProtocol, ErrValidation or ErrNotBound. The
// client never retries on its own; Manager layers rescans and backoff on
// top for callers that want them.
//
// # Protocol
//
// Devices listen on UDP port 7000. Payloads are JSON, encrypted with
// AES-128 in ECB mode and base64 encoded. Scan and bind traffic uses a key
// shared by the whole device family; binding returns a per-device key used
// for everything else. The protocol has no authentication beyond that, so
// keep the units on an isolated network.
package gree
