// client.go provides the Client: the public capture surface, event
// enrichment and the breadcrumb trail it owns.

package aisen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// UserFactory supplies the user for packets that carry none.
type UserFactory func(ctx context.Context) *User

// RequestFactory supplies the HTTP request for packets that carry none.
type RequestFactory func(ctx context.Context) *Request

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	loggerName        string
	release           string
	environment       string
	tags              map[string]string
	timeout           time.Duration
	compress          bool
	ignoreBreadcrumbs bool
	stackFingerprints bool
	systemState       bool
	scrubber          Scrubber
	errorHook         ErrorHook
	transport         Transport
	httpClient        *http.Client
	logger            *slog.Logger
	packetFactory     PacketFactory
	userFactory       UserFactory
	requestFactory    RequestFactory
}

// WithLoggerName sets the logger name applied to packets whose logger is
// blank or the default "root" (default: "root").
func WithLoggerName(name string) ClientOption {
	return func(c *clientConfig) {
		c.loggerName = name
	}
}

// WithRelease sets the release applied to packets that carry none.
func WithRelease(release string) ClientOption {
	return func(c *clientConfig) {
		c.release = release
	}
}

// WithEnvironment sets the environment applied to packets that carry none.
func WithEnvironment(environment string) ClientOption {
	return func(c *clientConfig) {
		c.environment = environment
	}
}

// WithTags adds default tags. Event tags win on key collision.
func WithTags(tags map[string]string) ClientOption {
	return func(c *clientConfig) {
		maps.Copy(c.tags, tags)
	}
}

// WithTimeout bounds each send attempt (default: 5s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCompression gzips request bodies.
func WithCompression(enabled bool) ClientOption {
	return func(c *clientConfig) {
		c.compress = enabled
	}
}

// WithIgnoreBreadcrumbs stops the client from recording and attaching
// breadcrumbs.
func WithIgnoreBreadcrumbs() ClientOption {
	return func(c *clientConfig) {
		c.ignoreBreadcrumbs = true
	}
}

// WithScrubber transforms the serialized packet text before it is sent.
func WithScrubber(s Scrubber) ClientOption {
	return func(c *clientConfig) {
		c.scrubber = s
	}
}

// WithDefaultScrubbing scrubs packets with a JSONScrubber built from
// DefaultScrubberConfig.
func WithDefaultScrubbing() ClientOption {
	return func(c *clientConfig) {
		// The default config has no extra patterns, so this cannot fail.
		s, _ := NewJSONScrubber(DefaultScrubberConfig())
		c.scrubber = s
	}
}

// WithErrorHook routes send failures to hook instead of logging them.
func WithErrorHook(hook ErrorHook) ClientOption {
	return func(c *clientConfig) {
		c.errorHook = hook
	}
}

// WithTransport replaces the HTTP transport. Timeout, compression, scrubber
// and HTTP client options only configure the default HTTP transport.
func WithTransport(t Transport) ClientOption {
	return func(c *clientConfig) {
		c.transport = t
	}
}

// WithHTTPClient sets the HTTP client used by the default transport.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for diagnostics (default: text to stderr).
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPacketFactory replaces NewPacket.
func WithPacketFactory(f PacketFactory) ClientOption {
	return func(c *clientConfig) {
		if f != nil {
			c.packetFactory = f
		}
	}
}

// WithUserFactory replaces UserFromContext. A nil factory disables user
// enrichment.
func WithUserFactory(f UserFactory) ClientOption {
	return func(c *clientConfig) {
		c.userFactory = f
	}
}

// WithRequestFactory replaces RequestFromContext. A nil factory disables
// request enrichment.
func WithRequestFactory(f RequestFactory) ClientOption {
	return func(c *clientConfig) {
		c.requestFactory = f
	}
}

// WithStackFingerprinting derives a fingerprint from the stack trace of
// events that carry a stack trace but no fingerprint.
func WithStackFingerprinting() ClientOption {
	return func(c *clientConfig) {
		c.stackFingerprints = true
	}
}

// WithSystemState attaches process metrics to every packet under
// contexts.system.
func WithSystemState() ClientOption {
	return func(c *clientConfig) {
		c.systemState = true
	}
}

// Client captures events and sends them to the collection service.
//
// Capture blocks the calling goroutine for at most the configured timeout
// and never fails because of the network: transport failures are contained
// and reported through the error hook or the logger.
type Client struct {
	identity          *EndpointIdentity
	transport         Transport
	logger            *slog.Logger
	loggerName        string
	release           string
	environment       string
	ignoreBreadcrumbs bool
	stackFingerprints bool
	systemState       bool
	errorHook         ErrorHook
	packetFactory     PacketFactory
	userFactory       UserFactory
	requestFactory    RequestFactory
	startTime         time.Time

	mu    sync.RWMutex
	tags  map[string]string
	trail *Trail
}

// NewClient creates a client for the given DSN.
func NewClient(dsn string, opts ...ClientOption) (*Client, error) {
	identity, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return NewClientWithIdentity(identity, opts...)
}

// NewClientWithIdentity creates a client for identity. identity may be nil
// only when WithTransport supplies a transport.
func NewClientWithIdentity(identity *EndpointIdentity, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		loggerName:     DefaultLoggerName,
		tags:           make(map[string]string),
		timeout:        DefaultTimeout,
		packetFactory:  NewPacket,
		userFactory:    UserFromContext,
		requestFactory: RequestFromContext,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	transport := cfg.transport
	if transport == nil {
		if identity == nil {
			return nil, ErrMissingTransport
		}
		httpTransport, err := NewHTTPTransport(identity, HTTPTransportConfig{
			Timeout:  cfg.timeout,
			Compress: cfg.compress,
			Scrubber: cfg.scrubber,
			Client:   cfg.httpClient,
		})
		if err != nil {
			return nil, err
		}
		transport = httpTransport
	}

	return &Client{
		identity:          identity,
		transport:         transport,
		logger:            cfg.logger,
		loggerName:        cfg.loggerName,
		release:           cfg.release,
		environment:       cfg.environment,
		ignoreBreadcrumbs: cfg.ignoreBreadcrumbs,
		stackFingerprints: cfg.stackFingerprints,
		systemState:       cfg.systemState,
		errorHook:         cfg.errorHook,
		packetFactory:     cfg.packetFactory,
		userFactory:       cfg.userFactory,
		requestFactory:    cfg.requestFactory,
		startTime:         time.Now(),
		tags:              cfg.tags,
		trail:             NewTrail(),
	}, nil
}

// Identity returns the endpoint identity, or nil for transport-only clients.
func (c *Client) Identity() *EndpointIdentity {
	return c.identity
}

// SetTag sets a default tag.
func (c *Client) SetTag(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[key] = value
}

// Tags returns a copy of the default tags.
func (c *Client) Tags() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.tags)
}

// MergeTags returns the default tags overlaid with callerTags. Caller values
// win on key collision. With nil callerTags the result equals the defaults.
func (c *Client) MergeTags(callerTags map[string]string) map[string]string {
	c.mu.RLock()
	merged := make(map[string]string, len(c.tags)+len(callerTags))
	maps.Copy(merged, c.tags)
	c.mu.RUnlock()

	maps.Copy(merged, callerTags)
	return merged
}

// AddTrail records a breadcrumb for the next capture. Nil breadcrumbs are
// ignored, as is everything when breadcrumbs are disabled.
func (c *Client) AddTrail(b *Breadcrumb) {
	if b == nil || c.ignoreBreadcrumbs {
		return
	}
	c.trail.Add(b)
}

// AddTrailContext records a breadcrumb on the trail carried by ctx, or on
// the client's trail when ctx carries none.
func (c *Client) AddTrailContext(ctx context.Context, b *Breadcrumb) {
	if b == nil || c.ignoreBreadcrumbs {
		return
	}
	c.trailFor(ctx).Add(b)
}

// RestartTrails discards the client's accumulated breadcrumbs.
func (c *Client) RestartTrails() {
	c.trail.Restart()
}

func (c *Client) trailFor(ctx context.Context) *Trail {
	if trail, ok := TrailFromContext(ctx); ok {
		return trail
	}
	return c.trail
}

// PreparePacket fills packet defaults, in order: logger, user, request,
// release, environment. A field is only written when blank; the logger is
// also replaced when it is the default "root" and the client names a
// logger. No other field is touched, so applying it twice is a no-op.
func (c *Client) PreparePacket(ctx context.Context, packet *Packet) {
	if packet.Logger == "" || (packet.Logger == DefaultLoggerName && c.loggerName != "") {
		packet.Logger = c.loggerName
	}
	if packet.User == nil && c.userFactory != nil {
		packet.User = c.userFactory(ctx)
	}
	if packet.Request == nil && c.requestFactory != nil {
		packet.Request = c.requestFactory(ctx)
	}
	if packet.Release == "" {
		packet.Release = c.release
	}
	if packet.Environment == "" {
		packet.Environment = c.environment
	}
}

// Capture sends event and returns the identifier acknowledged by the
// collection service, or "" when the send failed or nothing was
// acknowledged.
//
// The only error is ErrNilEvent. The event is copied; the caller's value is
// not modified. The active trail is consumed whatever the outcome.
func (c *Client) Capture(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", ErrNilEvent
	}

	ev := *event
	ev.Tags = c.MergeTags(event.Tags)

	crumbs := c.trailFor(ctx).take()
	ev.Breadcrumbs = nil
	if !c.ignoreBreadcrumbs {
		ev.Breadcrumbs = crumbs
	}

	if c.stackFingerprints && len(ev.Fingerprint) == 0 {
		ev.Fingerprint = Fingerprint(&ev)
	}

	return c.send(ctx, &ev), nil
}

// CaptureException captures err with the calling goroutine's stack.
func (c *Client) CaptureException(ctx context.Context, err error, level Level) (string, error) {
	return c.Capture(ctx, &Event{
		Exception:  err,
		Level:      level,
		Stacktrace: string(debug.Stack()),
	})
}

// CaptureMessage captures a plain message.
func (c *Client) CaptureMessage(ctx context.Context, message string, level Level) (string, error) {
	return c.Capture(ctx, &Event{
		Message: message,
		Level:   level,
	})
}

// send builds, prepares and transmits the packet for event. Every failure,
// including a panic in a collaborator, is routed to handleFailure.
func (c *Client) send(ctx context.Context, event *Event) (id string) {
	defer func() {
		if r := recover(); r != nil {
			id = c.handleFailure(fmt.Errorf("aisen: capture: %w", &PanicError{Value: r}))
		}
	}()

	packet, err := c.packetFactory(event)
	if err != nil {
		return c.handleFailure(fmt.Errorf("aisen: build packet: %w", err))
	}
	if packet == nil {
		return c.handleFailure(errors.New("aisen: build packet: factory returned no packet"))
	}

	if c.systemState {
		if packet.Contexts == nil {
			packet.Contexts = make(map[string]any)
		}
		packet.Contexts["system"] = CaptureSystemState(c.startTime)
	}

	c.PreparePacket(ctx, packet)

	id, err = c.transport.Send(ctx, packet)
	if err != nil {
		return c.handleFailure(err)
	}
	return id
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
