package httptransport

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var errResponseDecompressedTooLarge = errors.New("decompressed response exceeds maximum size limit")

// maxDecompressedReader wraps an io.Reader to enforce decompressed size limits
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		return 0, errResponseDecompressedTooLarge
	}

	maxRead := r.limit - r.consumed
	if int64(len(p)) > maxRead {
		p = p[:maxRead]
	}

	n, err := r.reader.Read(p)
	r.consumed += int64(n)

	if r.consumed >= r.limit && err == nil {
		// at the limit; one more byte means the body is too large
		var dummy [1]byte
		if _, peekErr := r.reader.Read(dummy[:]); peekErr == nil {
			return n, errResponseDecompressedTooLarge
		}
	}

	return n, err
}

// createSafeResponseReader limits the compressed body size and, for gzip
// responses, the decompressed size too.
// Returns the reader, cleanup function, and error
func createSafeResponseReader(resp *http.Response, options *ClientOptions) (io.Reader, func(), error) {
	maxResponseSize := options.MaxResponseSize
	if maxResponseSize == 0 {
		maxResponseSize = 10 * 1024 * 1024
	}
	maxDecompressedSize := options.MaxDecompressedResponseSize
	if maxDecompressedSize == 0 {
		maxDecompressedSize = 20 * 1024 * 1024
	}

	limited := io.LimitReader(resp.Body, maxResponseSize)

	encoding := strings.TrimSpace(strings.ToLower(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "":
		return limited, func() {}, nil
	case "gzip":
		gz, err := gzip.NewReader(limited)
		if err != nil {
			return nil, func() {}, fmt.Errorf("invalid gzip data: %w", err)
		}
		return &maxDecompressedReader{reader: gz, limit: maxDecompressedSize}, func() { gz.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}
