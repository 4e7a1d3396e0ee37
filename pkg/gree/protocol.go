package gree

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Constants defined by the Gree LAN protocol
const (
	// DefaultPort is the UDP port devices listen on.
	DefaultPort = 7000

	// MaxDatagramSize bounds a single reply. Scan replies are the largest
	// messages and stay well below 1 KiB.
	MaxDatagramSize = 4096

	// StatusOK is the "r" value of a successful reply.
	StatusOK = 200

	envelopeTypePack = "pack"
	envelopeTypeScan = "scan"
	appClientID      = "app"

	// "i" field of the outer envelope.
	requestIndexData = 0
	requestIndexBind = 1
)

// scanRequest is broadcast as-is. Units answer only this plain form and
// ignore a scan sealed with the generic key; their replies are sealed.
var scanRequest = []byte(`{"t":"scan"}`)

// errUnsolicited marks a datagram that is not the awaited reply.
var errUnsolicited = errors.New("unsolicited datagram")

// Envelope is the outer JSON object of every datagram. Field order matches
// what the devices emit.
type Envelope struct {
	CID  string `json:"cid"`
	I    int    `json:"i"`
	Pack string `json:"pack,omitempty"`
	T    string `json:"t"`
	TCID string `json:"tcid"`
	UID  int    `json:"uid"`
}

// encodeRequest seals pack with key and wraps it for the device mac.
func encodeRequest(key Key, mac string, index int, pack any) ([]byte, error) {
	sealed, err := Encrypt(key, pack)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		CID:  appClientID,
		I:    index,
		Pack: sealed,
		T:    envelopeTypePack,
		TCID: mac,
		UID:  0,
	})
}

// DecodeEnvelope parses the outer JSON object of a datagram.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrDecode, err)
	}
	if env.T == "" {
		return nil, fmt.Errorf("%w: envelope without type", ErrProtocol)
	}
	return &env, nil
}

// openReply checks that dg is the reply of type expect from mac and returns
// the decrypted pack. Datagrams that belong to something else yield
// errUnsolicited. A pack that does not open with key is also unsolicited,
// since the unit sends generic-key packs (scan replies, late bindok) from the
// same address; that error matches ErrDecode as well.
func openReply(key Key, mac string, dg Datagram, expect string) (json.RawMessage, error) {
	env, err := DecodeEnvelope(dg.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnsolicited, err)
	}
	if env.T != envelopeTypePack || env.Pack == "" {
		return nil, fmt.Errorf("%w: envelope type %q", errUnsolicited, env.T)
	}
	if env.CID != "" && env.CID != mac {
		return nil, fmt.Errorf("%w: from %q", errUnsolicited, env.CID)
	}

	raw, err := Decrypt(key, env.Pack)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnsolicited, err)
	}

	head, err := peekPack(raw)
	if err != nil {
		return nil, err
	}
	if head.T != expect {
		return nil, fmt.Errorf("%w: pack type %q, want %q", errUnsolicited, head.T, expect)
	}
	if head.MAC != "" && head.MAC != mac {
		return nil, fmt.Errorf("%w: pack for %q", errUnsolicited, head.MAC)
	}
	return raw, nil
}
