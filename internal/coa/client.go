// Package coa sends RFC 5176 Disconnect and CoA packets to NAS devices.
// Packets are best effort: a NAS that is offline or drops the port simply
// times out, and the caller decides whether that matters.
package coa

import (
	"context"
	"fmt"
	"time"

	"layeh.com/radius"
)

// PacketClient performs one RADIUS request/response exchange. The tests
// substitute a stub; production uses the UDP client below.
type PacketClient interface {
	Exchange(ctx context.Context, packet *radius.Packet, addr string) (*radius.Packet, error)
}

// netClient sends packets over UDP with a per-exchange timeout.
type netClient struct {
	timeout time.Duration
}

// NewPacketClient returns the UDP packet client. The timeout bounds each
// exchange; CoA targets answer within a round trip or not at all, so keep
// it short.
func NewPacketClient(timeout time.Duration) PacketClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &netClient{timeout: timeout}
}

func (c *netClient) Exchange(ctx context.Context, packet *radius.Packet, addr string) (*radius.Packet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := radius.Exchange(ctx, packet, addr)
	if err != nil {
		return nil, fmt.Errorf("radius exchange with %s: %w", addr, err)
	}
	return response, nil
}
