package gree

import (
	"context"
	"fmt"
	"net/netip"
	"sort"

	"go.uber.org/zap"
)

// DeviceIdentity is what a device reports about itself in its scan reply.
// Addr is taken from the UDP source of the reply.
type DeviceIdentity struct {
	Addr    netip.AddrPort
	MAC     string
	Name    string
	CID     string
	Brand   string
	Model   string
	Series  string
	Vendor  string
	Version string
}

func (d DeviceIdentity) String() string {
	if d.Name != "" && d.Name != d.MAC {
		return fmt.Sprintf("%s (%s) at %s", d.Name, d.MAC, d.Addr)
	}
	return fmt.Sprintf("%s at %s", d.MAC, d.Addr)
}

// Discover broadcasts a scan and collects replies for the discovery window,
// or until ctx is done or the configured number of devices answered.
// Results are deduplicated by MAC, keeping the latest reply, and sorted by
// MAC. Replies that cannot be decoded are skipped.
func (c *Client) Discover(ctx context.Context) ([]DeviceIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.discoveryWindow)
	defer cancel()

	replies, unsubscribe, err := c.subscribe(discoveryQueueSize(c.cfg.maxDevices), func(Datagram) bool { return true })
	if err != nil {
		return nil, opError("discover", "", ErrIO, err)
	}
	defer unsubscribe()

	target := netip.AddrPortFrom(c.cfg.broadcast, uint16(c.cfg.port))
	if err := c.t.Send(ctx, target, scanRequest); err != nil {
		c.logger.Error("failed to send scan", zap.Stringer("to", target), zap.Error(err))
		return nil, opError("discover", "", sendErrorKind(err), err)
	}
	c.logger.Debug("scan sent", zap.Stringer("to", target))

	found := make(map[string]DeviceIdentity)
	for {
		select {
		case <-ctx.Done():
			return sortedIdentities(found), nil
		case dg := <-replies:
			id, err := parseScanReply(dg)
			if err != nil {
				c.logger.Warn("skipping scan reply", zap.Stringer("from", dg.From), zap.Error(err))
				continue
			}
			if _, seen := found[id.MAC]; !seen {
				c.logger.Info("device discovered",
					zap.String("mac", id.MAC),
					zap.String("name", id.Name),
					zap.Stringer("addr", id.Addr))
			}
			found[id.MAC] = id
			if c.cfg.maxDevices > 0 && len(found) >= c.cfg.maxDevices {
				return sortedIdentities(found), nil
			}
		}
	}
}

// discoveryQueueSize holds a whole burst of scan replies, which all arrive
// while the scan is still being sent on a busy subnet.
func discoveryQueueSize(maxDevices int) int {
	const minQueue = 512
	return max(minQueue, 2*maxDevices)
}

func parseScanReply(dg Datagram) (DeviceIdentity, error) {
	env, err := DecodeEnvelope(dg.Data)
	if err != nil {
		return DeviceIdentity{}, err
	}
	if env.T == envelopeTypeScan {
		return DeviceIdentity{}, fmt.Errorf("%w: scan request echo", ErrProtocol)
	}
	if env.T != envelopeTypePack || env.Pack == "" {
		return DeviceIdentity{}, fmt.Errorf("%w: envelope type %q", ErrProtocol, env.T)
	}
	raw, err := Decrypt(GenericKey(), env.Pack)
	if err != nil {
		return DeviceIdentity{}, err
	}
	reply, err := decodeAs[*ScanReply](raw)
	if err != nil {
		return DeviceIdentity{}, err
	}
	if reply.MAC == "" {
		return DeviceIdentity{}, fmt.Errorf("%w: scan reply with empty mac", ErrProtocol)
	}
	name := reply.Name
	if name == "" {
		name = reply.MAC
	}
	return DeviceIdentity{
		Addr:    dg.From,
		MAC:     reply.MAC,
		Name:    name,
		CID:     reply.CID,
		Brand:   reply.Brand,
		Model:   reply.Model,
		Series:  reply.Series,
		Vendor:  reply.Vendor,
		Version: reply.Version,
	}, nil
}

func sortedIdentities(found map[string]DeviceIdentity) []DeviceIdentity {
	out := make([]DeviceIdentity, 0, len(found))
	for _, id := range found {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}
