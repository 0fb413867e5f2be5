package httptransport

import (
	"time"

	"github.com/c0deZ3R0/pixel-chunk/grid"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

// ServerOptions configures the REST server
type ServerOptions struct {
	// CompressionEnabled enables gzip compression for responses
	// Responses larger than CompressionThreshold will be compressed
	CompressionEnabled bool

	// CompressionThreshold is the minimum size in bytes before responses are compressed
	CompressionThreshold int64

	// DefaultRows and DefaultCols size projects created without explicit dimensions
	DefaultRows int
	DefaultCols int

	// RequestTimeout is the maximum duration for processing a single request
	RequestTimeout time.Duration
}

// DefaultServerOptions returns the default server options
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		CompressionEnabled:   true,
		CompressionThreshold: 1024, // 1KB
		DefaultRows:          16,
		DefaultCols:          16,
		RequestTimeout:       30 * time.Second,
	}
}

// ClientOptions configures the REST client
type ClientOptions struct {
	// CompressionEnabled sends Accept-Encoding: gzip and decodes gzip responses itself,
	// so both the compressed and decompressed sizes can be limited
	CompressionEnabled bool

	// MaxResponseSize is the maximum allowed size of response bodies in bytes (compressed)
	MaxResponseSize int64

	// MaxDecompressedResponseSize is the maximum allowed size of decompressed response bodies in bytes
	MaxDecompressedResponseSize int64

	// RequestTimeout bounds each request
	RequestTimeout time.Duration
}

// DefaultClientOptions returns the default client options
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		CompressionEnabled:          true,
		MaxResponseSize:             10 * 1024 * 1024, // 10MB
		MaxDecompressedResponseSize: 20 * 1024 * 1024, // 20MB
		RequestTimeout:              30 * time.Second,
	}
}

// ProjectState is the body of GET /projects/{id}.
type ProjectState struct {
	ID       string                    `json:"id"`
	State    *grid.Grid                `json:"state"`
	Versions []snapshot.ProjectVersion `json:"versions"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
