// Package cxdb provides a transport that persists packets to cxdb as
// SystemMessage items.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/aisen-go/pkg/aisen"
)

// CXDBClient is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// CXDBTransportOption configures the CXDB transport.
type CXDBTransportOption func(*cxdbTransportConfig)

type cxdbTransportConfig struct {
	orphanLabels []string
	clientTag    string
}

// WithOrphanLabels sets labels for contexts created for unlinked packets.
func WithOrphanLabels(labels []string) CXDBTransportOption {
	return func(c *cxdbTransportConfig) {
		c.orphanLabels = labels
	}
}

// WithClientTag sets the client tag for orphan contexts.
func WithClientTag(tag string) CXDBTransportOption {
	return func(c *cxdbTransportConfig) {
		c.clientTag = tag
	}
}

// cxdbTransport writes packets to cxdb as SystemMessage items.
type cxdbTransport struct {
	client       CXDBClient
	orphanLabels []string
	clientTag    string
}

// NewCXDBTransport creates a transport that writes to cxdb. Packets captured
// under aisen.ContextWithContextID are appended to that context; all others
// open a new orphan context.
func NewCXDBTransport(client CXDBClient, opts ...CXDBTransportOption) aisen.Transport {
	cfg := &cxdbTransportConfig{
		orphanLabels: []string{"error", "unlinked"},
		clientTag:    aisen.SDKName,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &cxdbTransport{
		client:       client,
		orphanLabels: cfg.orphanLabels,
		clientTag:    cfg.clientTag,
	}
}

// Send persists a packet to cxdb and returns its event ID.
func (t *cxdbTransport) Send(ctx context.Context, packet *aisen.Packet) (string, error) {
	contextID, isLinked := aisen.ContextIDFromContext(ctx)
	if !isLinked {
		head, err := t.client.CreateContext(ctx, 0)
		if err != nil {
			return "", fmt.Errorf("create orphan context: %w", err)
		}
		contextID = head.ContextID
	}

	item, err := t.buildConversationItem(packet, !isLinked)
	if err != nil {
		return "", err
	}

	// Encode to msgpack using the official cxdb encoder.
	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: packet.EventID,
	}

	if _, err := t.client.AppendTurn(ctx, req); err != nil {
		return "", fmt.Errorf("append turn: %w", err)
	}

	return packet.EventID, nil
}

// buildConversationItem creates a canonical ConversationItem from a packet.
// The item content is the packet's JSON wire form.
func (t *cxdbTransport) buildConversationItem(packet *aisen.Packet, isOrphan bool) (*cxdtypes.ConversationItem, error) {
	content, err := json.Marshal(packet)
	if err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: packet.Timestamp.UnixMilli(),
		ID:        packet.EventID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   buildTitle(packet),
			Content: string(content),
		},
	}

	// cxdb expects context metadata on the first turn of a context.
	if isOrphan {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    t.orphanLabels,
			ClientTag: t.clientTag,
		}
	}

	return item, nil
}

// buildTitle renders "level: message", truncated to 100 characters.
func buildTitle(packet *aisen.Packet) string {
	title := string(packet.Level)
	if packet.Message != "" {
		const maxMsgLen = 80
		msg := strings.SplitN(packet.Message, "\n", 2)[0]
		if len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen] + "..."
		}
		title += ": " + msg
	}

	if len(title) > 100 {
		title = title[:97] + "..."
	}
	return title
}

// Close is a no-op for the cxdb transport; the caller owns the client.
func (t *cxdbTransport) Close() error {
	return nil
}
