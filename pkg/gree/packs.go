package gree

import (
	"encoding/json"
	"fmt"
)

// Pack types carried in the "t" field of a decrypted pack.
const (
	packScan    = "dev"
	packBind    = "bindok"
	packStatus  = "dat"
	packCommand = "res"

	packBindRequest    = "bind"
	packStatusRequest  = "status"
	packCommandRequest = "cmd"
)

// Pack is a decoded reply pack.
type Pack interface {
	PackType() string
}

// ScanReply is sent by every device that hears a scan broadcast.
type ScanReply struct {
	MAC     string `json:"mac"`
	Name    string `json:"name"`
	CID     string `json:"cid"`
	Brand   string `json:"brand"`
	Catalog string `json:"catalog"`
	Model   string `json:"model"`
	MID     string `json:"mid"`
	Series  string `json:"series"`
	Vendor  string `json:"vender"`
	Version string `json:"ver"`
	Lock    int    `json:"lock"`
}

// BindReply carries the device key issued during binding.
type BindReply struct {
	MAC string `json:"mac"`
	Key string `json:"key"`
	R   int    `json:"r"`
}

// StatusReply answers a status request. Dat is positional with respect to
// the requested columns.
type StatusReply struct {
	MAC  string            `json:"mac"`
	R    int               `json:"r"`
	Cols []string          `json:"cols"`
	Dat  []json.RawMessage `json:"dat"`
}

// CommandReply acknowledges a command. Opt echoes the written codes, P the
// written values. Some firmware also reports Val.
type CommandReply struct {
	MAC string            `json:"mac"`
	R   int               `json:"r"`
	Opt []string          `json:"opt"`
	P   []json.RawMessage `json:"p"`
	Val []json.RawMessage `json:"val,omitempty"`
}

func (*ScanReply) PackType() string    { return packScan }
func (*BindReply) PackType() string    { return packBind }
func (*StatusReply) PackType() string  { return packStatus }
func (*CommandReply) PackType() string { return packCommand }

// required fields per reply type
var requiredFields = map[string][]string{
	packScan:    {"mac"},
	packBind:    {"mac", "key"},
	packStatus:  {"mac", "r", "dat"},
	packCommand: {"mac", "r", "opt", "p"},
}

type packHead struct {
	T   string `json:"t"`
	MAC string `json:"mac"`
}

func peekPack(raw json.RawMessage) (packHead, error) {
	var h packHead
	if err := json.Unmarshal(raw, &h); err != nil {
		return packHead{}, fmt.Errorf("%w: pack is not an object: %v", ErrProtocol, err)
	}
	if h.T == "" {
		return packHead{}, fmt.Errorf("%w: pack without type", ErrProtocol)
	}
	return h, nil
}

// DecodePack dispatches on the pack type and decodes the matching variant.
// Missing required fields and unknown types yield ErrProtocol.
func DecodePack(raw json.RawMessage) (Pack, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: pack is not an object: %v", ErrProtocol, err)
	}
	var t string
	if err := json.Unmarshal(fields["t"], &t); err != nil || t == "" {
		return nil, fmt.Errorf("%w: pack without type", ErrProtocol)
	}

	var p Pack
	switch t {
	case packScan:
		p = &ScanReply{}
	case packBind:
		p = &BindReply{}
	case packStatus:
		p = &StatusReply{}
	case packCommand:
		p = &CommandReply{}
	default:
		return nil, fmt.Errorf("%w: unknown pack type %q", ErrProtocol, t)
	}
	for _, f := range requiredFields[t] {
		if v, ok := fields[f]; !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: %s pack missing %q", ErrProtocol, t, f)
		}
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %s pack: %v", ErrProtocol, t, err)
	}
	return p, nil
}

// decodeAs decodes raw and asserts the variant.
func decodeAs[T Pack](raw json.RawMessage) (T, error) {
	var zero T
	p, err := DecodePack(raw)
	if err != nil {
		return zero, err
	}
	v, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s pack, want %s", ErrProtocol, p.PackType(), zero.PackType())
	}
	return v, nil
}

// intValues converts positional reply values. Every catalog property is
// integer valued, anything else is a protocol violation.
func intValues(raw []json.RawMessage) ([]int, error) {
	out := make([]int, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return nil, fmt.Errorf("%w: value %d (%s) is not an integer", ErrProtocol, i, r)
		}
	}
	return out, nil
}

type bindRequest struct {
	MAC string `json:"mac"`
	T   string `json:"t"`
	UID int    `json:"uid"`
}

type statusRequest struct {
	Cols []Code `json:"cols"`
	MAC  string `json:"mac"`
	T    string `json:"t"`
}

type commandRequest struct {
	Opt []Code `json:"opt"`
	P   []int  `json:"p"`
	T   string `json:"t"`
}
