package cxdb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/aisen-go/pkg/aisen"
)

// mockCXDBClient is a test double for the cxdb client.
type mockCXDBClient struct {
	mu             sync.Mutex
	createContexts []uint64 // baseTurnIDs passed to CreateContext
	appendRequests []*cxdbclient.AppendRequest
	nextContextID  uint64
	createErr      error
	appendErr      error
}

func (m *mockCXDBClient) CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createContexts = append(m.createContexts, baseTurnID)
	m.nextContextID++
	return &cxdbclient.ContextHead{
		ContextID:  m.nextContextID,
		HeadTurnID: 0,
		HeadDepth:  0,
	}, nil
}

func (m *mockCXDBClient) AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.appendRequests = append(m.appendRequests, req)
	return &cxdbclient.AppendResult{
		ContextID: req.ContextID,
		TurnID:    1,
		Depth:     1,
	}, nil
}

func (m *mockCXDBClient) getAppendRequests() []*cxdbclient.AppendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*cxdbclient.AppendRequest, len(m.appendRequests))
	copy(result, m.appendRequests)
	return result
}

func (m *mockCXDBClient) getCreateContextCalls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]uint64, len(m.createContexts))
	copy(result, m.createContexts)
	return result
}

func decodeConversationItem(t *testing.T, payload []byte) cxdtypes.ConversationItem {
	t.Helper()
	var item cxdtypes.ConversationItem
	if err := cxdbclient.DecodeMsgpackInto(payload, &item); err != nil {
		t.Fatalf("DecodeMsgpackInto failed: %v", err)
	}
	return item
}

func decodeDetailsJSON(t *testing.T, content string) map[string]any {
	t.Helper()
	var details map[string]any
	if err := json.Unmarshal([]byte(content), &details); err != nil {
		t.Fatalf("details JSON unmarshal failed: %v", err)
	}
	return details
}

func testPacket(id string) *aisen.Packet {
	return &aisen.Packet{
		EventID:   id,
		Timestamp: time.Date(2025, 1, 26, 12, 0, 0, 0, time.UTC),
		Level:     aisen.LevelError,
		Logger:    "root",
		Platform:  "go",
		Message:   "test error",
		SDK:       aisen.SDKInfo{Name: aisen.SDKName, Version: aisen.Version},
	}
}

func TestCXDBTransport_ImplementsTransportInterface(t *testing.T) {
	client := &mockCXDBClient{}
	var _ aisen.Transport = NewCXDBTransport(client)
}

func TestCXDBTransport_Send_WithContextID_AppendsTurn(t *testing.T) {
	client := &mockCXDBClient{}
	transport := NewCXDBTransport(client)

	ctx := aisen.ContextWithContextID(context.Background(), 12345)
	id, err := transport.Send(ctx, testPacket("evt-123"))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if id != "evt-123" {
		t.Errorf("Send id = %q, want evt-123", id)
	}

	if calls := client.getCreateContextCalls(); len(calls) != 0 {
		t.Errorf("Should not create context when a context ID is set, got %d create calls", len(calls))
	}

	appendReqs := client.getAppendRequests()
	if len(appendReqs) != 1 {
		t.Fatalf("Expected 1 append request, got %d", len(appendReqs))
	}

	req := appendReqs[0]
	if req.ContextID != 12345 {
		t.Errorf("AppendRequest.ContextID = %d, want 12345", req.ContextID)
	}
	if req.TypeID != cxdtypes.TypeIDConversationItem {
		t.Errorf("TypeID = %q, want %q", req.TypeID, cxdtypes.TypeIDConversationItem)
	}
	if req.TypeVersion != cxdtypes.TypeVersionConversationItem {
		t.Errorf("TypeVersion = %d, want %d", req.TypeVersion, cxdtypes.TypeVersionConversationItem)
	}
	if req.IdempotencyKey != "evt-123" {
		t.Errorf("IdempotencyKey = %q, want %q", req.IdempotencyKey, "evt-123")
	}
}

func TestCXDBTransport_Send_WithoutContextID_CreatesOrphan(t *testing.T) {
	client := &mockCXDBClient{}
	transport := NewCXDBTransport(client)

	if _, err := transport.Send(context.Background(), testPacket("evt-123")); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if calls := client.getCreateContextCalls(); len(calls) != 1 {
		t.Fatalf("Expected 1 create context call, got %d", len(calls))
	}

	appendReqs := client.getAppendRequests()
	if len(appendReqs) != 1 {
		t.Fatalf("Expected 1 append request, got %d", len(appendReqs))
	}
	if appendReqs[0].ContextID != 1 {
		t.Errorf("AppendRequest.ContextID = %d, want the created context 1", appendReqs[0].ContextID)
	}

	item := decodeConversationItem(t, appendReqs[0].Payload)
	if item.ContextMetadata == nil {
		t.Fatalf("ContextMetadata should be set for orphan contexts")
	}
	if item.ContextMetadata.ClientTag != aisen.SDKName {
		t.Errorf("ClientTag = %q, want %q", item.ContextMetadata.ClientTag, aisen.SDKName)
	}
	if len(item.ContextMetadata.Labels) == 0 {
		t.Errorf("Labels should be set for orphan contexts")
	}
}

func TestCXDBTransport_Send_PayloadFormat_CanonicalTypes(t *testing.T) {
	client := &mockCXDBClient{}
	transport := NewCXDBTransport(client)

	packet := testPacket("evt-456")
	packet.Message = "connection timed out"
	packet.Tags = map[string]string{"tool": "WebSearch"}
	packet.Fingerprint = []string{"fp123"}

	ctx := aisen.ContextWithContextID(context.Background(), 99)
	if _, err := transport.Send(ctx, packet); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	appendReqs := client.getAppendRequests()
	if len(appendReqs) != 1 {
		t.Fatalf("Expected 1 append request, got %d", len(appendReqs))
	}

	item := decodeConversationItem(t, appendReqs[0].Payload)

	if item.ItemType != cxdtypes.ItemTypeSystem {
		t.Errorf("ItemType = %q, want %q", item.ItemType, cxdtypes.ItemTypeSystem)
	}
	if item.Status != cxdtypes.ItemStatusComplete {
		t.Errorf("Status = %q, want %q", item.Status, cxdtypes.ItemStatusComplete)
	}
	if item.ID != "evt-456" {
		t.Errorf("ID = %q, want evt-456", item.ID)
	}
	if item.Timestamp != packet.Timestamp.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", item.Timestamp, packet.Timestamp.UnixMilli())
	}
	if item.System == nil {
		t.Fatalf("System message should be present")
	}
	if item.System.Kind != cxdtypes.SystemKindError {
		t.Errorf("System.Kind = %q, want %q", item.System.Kind, cxdtypes.SystemKindError)
	}
	if item.System.Title != "error: connection timed out" {
		t.Errorf("System.Title = %q, want %q", item.System.Title, "error: connection timed out")
	}

	details := decodeDetailsJSON(t, item.System.Content)
	if details["event_id"] != "evt-456" {
		t.Errorf("event_id = %v, want evt-456", details["event_id"])
	}
	if details["message"] != "connection timed out" {
		t.Errorf("message = %v, want connection timed out", details["message"])
	}
	tags, _ := details["tags"].(map[string]any)
	if tags["tool"] != "WebSearch" {
		t.Errorf("tags.tool = %v, want WebSearch", tags["tool"])
	}

	// Non-orphan contexts should not include context metadata.
	if item.ContextMetadata != nil {
		t.Errorf("ContextMetadata should be nil for non-orphan contexts")
	}
}

func TestCXDBTransport_WithOrphanLabels_AndClientTag(t *testing.T) {
	client := &mockCXDBClient{}
	transport := NewCXDBTransport(
		client,
		WithOrphanLabels([]string{"error", "critical"}),
		WithClientTag("aisen-e2e"),
	)

	if _, err := transport.Send(context.Background(), testPacket("evt-789")); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	appendReqs := client.getAppendRequests()
	if len(appendReqs) != 1 {
		t.Fatalf("Expected 1 append request, got %d", len(appendReqs))
	}

	item := decodeConversationItem(t, appendReqs[0].Payload)
	if item.ContextMetadata == nil {
		t.Fatalf("ContextMetadata should be set for orphan contexts")
	}
	if item.ContextMetadata.ClientTag != "aisen-e2e" {
		t.Errorf("ClientTag = %q, want %q", item.ContextMetadata.ClientTag, "aisen-e2e")
	}
	if len(item.ContextMetadata.Labels) != 2 || item.ContextMetadata.Labels[1] != "critical" {
		t.Errorf("Labels = %v, want %v", item.ContextMetadata.Labels, []string{"error", "critical"})
	}
}

func TestCXDBTransport_Send_CreateContextError(t *testing.T) {
	client := &mockCXDBClient{createErr: errors.New("unavailable")}
	transport := NewCXDBTransport(client)

	id, err := transport.Send(context.Background(), testPacket("evt-1"))
	if err == nil || !strings.Contains(err.Error(), "create orphan context") {
		t.Fatalf("Send error = %v, want create orphan context failure", err)
	}
	if id != "" {
		t.Errorf("Send id = %q, want empty", id)
	}
	if reqs := client.getAppendRequests(); len(reqs) != 0 {
		t.Errorf("Expected no append requests, got %d", len(reqs))
	}
}

func TestCXDBTransport_Send_AppendError(t *testing.T) {
	client := &mockCXDBClient{appendErr: errors.New("write failed")}
	transport := NewCXDBTransport(client)

	ctx := aisen.ContextWithContextID(context.Background(), 7)
	id, err := transport.Send(ctx, testPacket("evt-2"))
	if err == nil || !strings.Contains(err.Error(), "append turn") {
		t.Fatalf("Send error = %v, want append turn failure", err)
	}
	if id != "" {
		t.Errorf("Send id = %q, want empty", id)
	}
}

func TestBuildTitle(t *testing.T) {
	tests := []struct {
		name    string
		level   aisen.Level
		message string
		want    string
	}{
		{name: "level only", level: aisen.LevelWarning, want: "warning"},
		{name: "with message", level: aisen.LevelError, message: "boom", want: "error: boom"},
		{name: "first line only", level: aisen.LevelError, message: "boom\nsecond line", want: "error: boom"},
		{name: "long message", level: aisen.LevelFatal, message: strings.Repeat("x", 120), want: "fatal: " + strings.Repeat("x", 80) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildTitle(&aisen.Packet{Level: tt.level, Message: tt.message})
			if got != tt.want {
				t.Errorf("buildTitle() = %q, want %q", got, tt.want)
			}
			if len(got) > 100 {
				t.Errorf("buildTitle() length = %d, want <= 100", len(got))
			}
		})
	}
}

func TestCXDBTransport_Close(t *testing.T) {
	client := &mockCXDBClient{}
	transport := NewCXDBTransport(client)

	if err := transport.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
