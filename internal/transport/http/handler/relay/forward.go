package relay

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// streamBufferSize is the read size used when passing a body through.
const streamBufferSize = 32 * 1024

// skippedResponseHeaders are never copied from an upstream response. The
// relay sets its own CORS and caching headers, and the body length is
// decided by the server.
var skippedResponseHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Cache-Control":       true,
	"Vary":                true,
}

// copyResponseHeaders copies upstream response headers onto dst.
func copyResponseHeaders(dst, src http.Header) {
	for k, v := range src {
		if skippedResponseHeaders[k] || strings.HasPrefix(k, "Access-Control-") {
			continue
		}
		dst[k] = append([]string(nil), v...)
	}
}

// streamBody copies src to w, flushing after every read so that each
// upstream chunk reaches the client as soon as it arrives.
func streamBody(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, streamBufferSize)

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
