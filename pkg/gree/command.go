package gree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Setting is one property code and its value.
type Setting struct {
	Code  Code
	Value int
}

func (s Setting) String() string {
	return fmt.Sprintf("%s=%s", s.Code, Label(s.Code, s.Value))
}

// PropertySet is an ordered list of settings: a status snapshot or a set
// of changes.
type PropertySet []Setting

// Get returns the value for code.
func (p PropertySet) Get(code Code) (int, bool) {
	for _, s := range p {
		if s.Code == code {
			return s.Value, true
		}
	}
	return 0, false
}

// Codes returns the codes in order.
func (p PropertySet) Codes() []Code {
	codes := make([]Code, len(p))
	for i, s := range p {
		codes[i] = s.Code
	}
	return codes
}

// Values returns the values in order.
func (p PropertySet) Values() []int {
	values := make([]int, len(p))
	for i, s := range p {
		values[i] = s.Value
	}
	return values
}

// Validate checks every setting against the catalog and rejects duplicate
// codes.
func (p PropertySet) Validate() error {
	seen := make(map[Code]bool, len(p))
	for _, s := range p {
		if err := Validate(s.Code, s.Value); err != nil {
			return err
		}
		if seen[s.Code] {
			return fmt.Errorf("%w: duplicate code %s", ErrValidation, s.Code)
		}
		seen[s.Code] = true
	}
	return nil
}

func (p PropertySet) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}

// ReadStatus asks the device for the given codes and returns their values
// in request order. The session must be bound.
func (c *Client) ReadStatus(ctx context.Context, s *Session, codes []Code) (PropertySet, error) {
	id := s.Identity()
	if len(codes) == 0 {
		return nil, opError("read", id.MAC, ErrValidation, errors.New("no property codes"))
	}
	seen := make(map[Code]bool, len(codes))
	for _, code := range codes {
		if _, err := Lookup(code); err != nil {
			return nil, opError("read", id.MAC, ErrValidation, err)
		}
		if seen[code] {
			return nil, opError("read", id.MAC, ErrValidation, fmt.Errorf("duplicate code %s", code))
		}
		seen[code] = true
	}

	s.op.Lock()
	defer s.op.Unlock()

	key, err := s.dataKey()
	if err != nil {
		return nil, opError("read", id.MAC, ErrNotBound, nil)
	}

	req, err := encodeRequest(key, id.MAC, requestIndexData, statusRequest{
		Cols: codes,
		MAC:  id.MAC,
		T:    packStatusRequest,
	})
	if err != nil {
		return nil, opError("read", id.MAC, ErrProtocol, err)
	}

	raw, err := c.exchange(ctx, "read", id, key, req, packStatus)
	if err != nil {
		return nil, err
	}

	reply, err := decodeAs[*StatusReply](raw)
	if err != nil {
		return nil, opError("read", id.MAC, ErrProtocol, err)
	}
	if reply.R != StatusOK {
		return nil, opError("read", id.MAC, ErrProtocol, fmt.Errorf("status %d", reply.R))
	}
	if len(reply.Dat) != len(codes) {
		return nil, opError("read", id.MAC, ErrProtocol,
			fmt.Errorf("requested %d values, got %d", len(codes), len(reply.Dat)))
	}
	values, err := intValues(reply.Dat)
	if err != nil {
		return nil, opError("read", id.MAC, ErrProtocol, err)
	}

	out := make(PropertySet, len(codes))
	for i, code := range codes {
		out[i] = Setting{Code: code, Value: values[i]}
	}
	c.logger.Debug("status read", zap.String("mac", id.MAC), zap.Stringer("status", out))
	return out, nil
}

// WriteStatus applies changes and returns the values the device
// acknowledged. Changes are validated before anything is sent. The session
// must be bound.
func (c *Client) WriteStatus(ctx context.Context, s *Session, changes PropertySet) (PropertySet, error) {
	id := s.Identity()
	if len(changes) == 0 {
		return nil, opError("write", id.MAC, ErrValidation, errors.New("no changes"))
	}
	if err := changes.Validate(); err != nil {
		return nil, opError("write", id.MAC, ErrValidation, err)
	}
	for _, ch := range changes {
		if err := validateWritable(ch.Code, ch.Value); err != nil {
			return nil, opError("write", id.MAC, ErrValidation, err)
		}
	}

	s.op.Lock()
	defer s.op.Unlock()

	key, err := s.dataKey()
	if err != nil {
		return nil, opError("write", id.MAC, ErrNotBound, nil)
	}

	codes := changes.Codes()
	req, err := encodeRequest(key, id.MAC, requestIndexData, commandRequest{
		Opt: codes,
		P:   changes.Values(),
		T:   packCommandRequest,
	})
	if err != nil {
		return nil, opError("write", id.MAC, ErrProtocol, err)
	}

	raw, err := c.exchange(ctx, "write", id, key, req, packCommand)
	if err != nil {
		return nil, err
	}

	reply, err := decodeAs[*CommandReply](raw)
	if err != nil {
		return nil, opError("write", id.MAC, ErrProtocol, err)
	}
	if reply.R != StatusOK {
		return nil, opError("write", id.MAC, ErrProtocol, fmt.Errorf("status %d", reply.R))
	}
	if len(reply.Opt) != len(codes) || len(reply.P) != len(codes) {
		return nil, opError("write", id.MAC, ErrProtocol,
			fmt.Errorf("wrote %d values, acknowledged %d codes and %d values", len(codes), len(reply.Opt), len(reply.P)))
	}
	for i, code := range codes {
		if Code(reply.Opt[i]) != code {
			return nil, opError("write", id.MAC, ErrProtocol,
				fmt.Errorf("acknowledged %s at position %d, wrote %s", reply.Opt[i], i, code))
		}
	}
	values, err := intValues(reply.P)
	if err != nil {
		return nil, opError("write", id.MAC, ErrProtocol, err)
	}

	out := make(PropertySet, len(codes))
	for i, code := range codes {
		out[i] = Setting{Code: code, Value: values[i]}
	}
	c.logger.Info("settings applied", zap.String("mac", id.MAC), zap.Stringer("settings", out))
	return out, nil
}
