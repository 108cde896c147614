// auth.go builds the per-request authentication header.

package aisen

import (
	"strconv"
	"strings"
	"time"
)

// AuthHeader is the request header carrying AuthHeaderValue.
const AuthHeader = "X-Sentry-Auth"

// protocolVersion is the store protocol version this client speaks.
const protocolVersion = 7

// AuthHeaderValue signs a request for identity at time now. The timestamp is
// part of the value, so it must be computed for every request.
func AuthHeaderValue(identity *EndpointIdentity, now time.Time) string {
	var b strings.Builder
	b.WriteString("Sentry sentry_version=")
	b.WriteString(strconv.Itoa(protocolVersion))
	b.WriteString(", sentry_client=")
	b.WriteString(userAgent)
	b.WriteString(", sentry_timestamp=")
	b.WriteString(strconv.FormatInt(now.Unix(), 10))
	b.WriteString(", sentry_key=")
	b.WriteString(identity.publicKey)
	if identity.secretKey != "" {
		b.WriteString(", sentry_secret=")
		b.WriteString(identity.secretKey)
	}
	return b.String()
}
