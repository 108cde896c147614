// version.go holds the SDK identity reported to the collection service.

package aisen

const (
	// SDKName identifies this client in the auth header, the User-Agent
	// header and the packet's sdk block.
	SDKName = "aisen-go"

	// Version is the SDK version.
	Version = "0.1.0"

	userAgent = SDKName + "/" + Version
)
