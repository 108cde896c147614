// transport.go defines the Transport interface and the HTTP transport that
// delivers packets to the collection service.

package aisen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Transport delivers a prepared packet and returns the event identifier the
// receiver acknowledged, or "" when it acknowledged none.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Send makes exactly one delivery attempt.
	Send(ctx context.Context, packet *Packet) (string, error)

	// Close releases resources held by the transport.
	Close() error
}

// DefaultTimeout bounds each request when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// maxResponseSize bounds response body reads. Acknowledgments are tiny; the
// limit only guards against a misbehaving server.
const maxResponseSize int64 = 1 << 20

// HTTPTransportConfig controls an HTTPTransport.
type HTTPTransportConfig struct {
	// Timeout bounds connect, TLS handshake, response header wait and the
	// whole exchange (default: 5s).
	Timeout time.Duration

	// Compress gzips request bodies and accepts gzipped responses.
	Compress bool

	// Scrubber, if set, transforms the serialized packet before sending.
	Scrubber Scrubber

	// Client replaces the transport's own HTTP client. Its timeouts are the
	// caller's responsibility; the per-request context deadline still applies.
	Client *http.Client

	// Now is the clock used to sign requests (default: time.Now).
	Now func() time.Time
}

// HTTPTransport posts packets to the store endpoint of an EndpointIdentity.
type HTTPTransport struct {
	identity   *EndpointIdentity
	client     *http.Client
	ownsClient bool
	timeout    time.Duration
	compress   bool
	scrubber   Scrubber
	now        func() time.Time
}

// storeResponse is the acknowledgment body. A missing id is not an error.
type storeResponse struct {
	ID string `json:"id"`
}

// NewHTTPTransport creates a transport for identity.
func NewHTTPTransport(identity *EndpointIdentity, cfg HTTPTransportConfig) (*HTTPTransport, error) {
	if identity == nil {
		return nil, ErrMissingEndpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	t := &HTTPTransport{
		identity: identity,
		client:   cfg.Client,
		timeout:  timeout,
		compress: cfg.Compress,
		scrubber: cfg.Scrubber,
		now:      now,
	}
	if t.client == nil {
		t.client = newHTTPClient(timeout)
		t.ownsClient = true
	}
	return t, nil
}

// newHTTPClient applies timeout to both the connection and the read/write
// phases of an exchange.
func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          4,
		},
	}
}

// Send serializes, optionally scrubs and compresses, and posts packet.
//
// Network errors, timeouts, non-2xx answers and malformed acknowledgments
// are returned as errors; the caller decides how to contain them. The
// response body is closed on every path.
func (t *HTTPTransport) Send(ctx context.Context, packet *Packet) (string, error) {
	body, err := t.encode(packet)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.identity.uri.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("aisen: create request: %w", err)
	}
	t.setHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("aisen: send event: %w", err)
	}
	defer resp.Body.Close()

	reader, err := t.responseReader(resp)
	if err != nil {
		return "", fmt.Errorf("aisen: decompress response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, readErr := readBounded(reader)
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
			BodyErr:    readErr,
		}
	}

	data, err := readBounded(reader)
	if err != nil {
		return "", fmt.Errorf("aisen: read response: %w", err)
	}
	return parseEventID(data)
}

// encode produces the request body: compact JSON, scrubbed, then gzipped
// when compression is enabled.
func (t *HTTPTransport) encode(packet *Packet) ([]byte, error) {
	raw, err := json.Marshal(packet)
	if err != nil {
		return nil, fmt.Errorf("aisen: encode packet: %w", err)
	}

	if t.scrubber != nil {
		raw = []byte(t.scrubber.Scrub(string(raw)))
	}

	if !t.compress {
		return raw, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("aisen: compress packet: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("aisen: compress packet: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *HTTPTransport) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(AuthHeader, AuthHeaderValue(t.identity, t.now()))
	req.Header.Set("User-Agent", userAgent)
	if t.compress {
		req.Header.Set("Content-Encoding", "gzip")
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("Content-Type", "application/octet-stream")
	} else {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
}

// responseReader decodes gzipped responses. Setting Accept-Encoding
// ourselves turns off net/http's transparent decompression.
func (t *HTTPTransport) responseReader(resp *http.Response) (io.Reader, error) {
	if !t.compress || resp.Header.Get("Content-Encoding") != "gzip" {
		return resp.Body, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if errors.Is(err, io.EOF) {
		return bytes.NewReader(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return zr, nil
}

// Close releases idle connections of the transport's own HTTP client.
func (t *HTTPTransport) Close() error {
	if t.ownsClient {
		t.client.CloseIdleConnections()
	}
	return nil
}

func readBounded(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseSize))
}

// parseEventID extracts the acknowledged id. An empty body yields "".
func parseEventID(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}
	var ack storeResponse
	if err := json.Unmarshal(data, &ack); err != nil {
		return "", fmt.Errorf("aisen: decode response: %w", err)
	}
	return ack.ID, nil
}
