// dsn.go holds the endpoint identity used to address and authenticate requests.

package aisen

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointIdentity is the destination of captured events: the store URI plus
// the keys and project that authenticate requests to it. It is immutable
// once constructed.
type EndpointIdentity struct {
	uri       *url.URL
	publicKey string
	secretKey string
	projectID string
}

// NewEndpointIdentity builds an identity from its parts. The secret key is
// optional; the URI, public key and project ID are not.
func NewEndpointIdentity(uri *url.URL, publicKey, secretKey, projectID string) (*EndpointIdentity, error) {
	if uri == nil || uri.Host == "" {
		return nil, ErrMissingEndpoint
	}
	if publicKey == "" {
		return nil, ErrMissingPublicKey
	}
	if projectID == "" {
		return nil, ErrMissingProjectID
	}

	stored := *uri
	stored.User = nil

	return &EndpointIdentity{
		uri:       &stored,
		publicKey: publicKey,
		secretKey: secretKey,
		projectID: projectID,
	}, nil
}

// ParseDSN parses a DSN of the form
//
//	https://<public>[:<secret>]@<host>[:<port>][/<prefix>]/<project>
//
// into an identity whose URI is the project's store endpoint:
//
//	https://<host>[:<port>][/<prefix>]/api/<project>/store/
func ParseDSN(dsn string) (*EndpointIdentity, error) {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, u.Scheme)
	}

	var publicKey, secretKey string
	if u.User != nil {
		publicKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	path := strings.TrimSuffix(u.Path, "/")
	prefix, projectID := "", path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		prefix, projectID = path[:idx], path[idx+1:]
	}

	store := &url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   prefix + "/api/" + projectID + "/store/",
	}

	identity, err := NewEndpointIdentity(store, publicKey, secretKey, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDSN, err)
	}
	return identity, nil
}

// URI returns a copy of the store endpoint.
func (e *EndpointIdentity) URI() *url.URL {
	u := *e.uri
	return &u
}

// PublicKey returns the public key.
func (e *EndpointIdentity) PublicKey() string { return e.publicKey }

// SecretKey returns the secret key, which may be empty.
func (e *EndpointIdentity) SecretKey() string { return e.secretKey }

// ProjectID returns the project identifier.
func (e *EndpointIdentity) ProjectID() string { return e.projectID }
