// Package multi provides a transport that fans out to multiple transports.
// All transports receive all packets; errors are aggregated.
package multi

import (
	"context"
	"errors"

	"github.com/strongdm/aisen-go/pkg/aisen"
)

// multiTransport fans out to multiple transports.
type multiTransport struct {
	transports []aisen.Transport
}

// NewMultiTransport creates a transport that sends to multiple transports in
// order. The first non-empty event ID wins. Errors are aggregated via
// errors.Join and returned alongside that ID.
func NewMultiTransport(transports ...aisen.Transport) aisen.Transport {
	return &multiTransport{
		transports: transports,
	}
}

// Send sends the packet to all transports, collecting any errors.
// All transports are called even if some return errors.
func (m *multiTransport) Send(ctx context.Context, packet *aisen.Packet) (string, error) {
	var id string
	var errs []error
	for _, t := range m.transports {
		got, err := t.Send(ctx, packet)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id == "" {
			id = got
		}
	}
	return id, errors.Join(errs...)
}

// Close calls Close on all transports, collecting any errors.
func (m *multiTransport) Close() error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
