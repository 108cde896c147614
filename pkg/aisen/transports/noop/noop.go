// Package noop provides a no-operation transport that discards all packets.
// Useful for testing and for disabling event delivery.
package noop

import (
	"context"

	"github.com/strongdm/aisen-go/pkg/aisen"
)

// noopTransport discards all packets.
type noopTransport struct{}

// NewNoopTransport creates a transport that discards all packets.
// Send acknowledges nothing: it returns an empty event ID and nil.
func NewNoopTransport() aisen.Transport {
	return &noopTransport{}
}

// Send discards the packet.
func (t *noopTransport) Send(ctx context.Context, packet *aisen.Packet) (string, error) {
	return "", nil
}

// Close is a no-op and returns nil.
func (t *noopTransport) Close() error {
	return nil
}
