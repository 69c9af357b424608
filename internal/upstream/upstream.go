// Package upstream forwards relay requests to an ordered list of candidate
// hosts, falling through to the next host only when the current one signals
// that it does not implement the endpoint.
package upstream

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrUpstreamUnavailable is returned when no candidate produced a response.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrInvalidBody is returned by RequireJSON.
var ErrInvalidBody = errors.New("upstream body is not valid JSON")

// ErrUnknownOperation is returned when Route is called for an operation that
// has no configured endpoint.
var ErrUnknownOperation = errors.New("unknown upstream operation")

// Operation names a logical relay operation.
type Operation string

// Operations served by the relay.
const (
	OpChat   Operation = "chat"
	OpModels Operation = "models"
	OpSearx  Operation = "searx"
	OpNVD    Operation = "nvd"
)

// Operations lists every operation in a stable order.
var Operations = []Operation{OpChat, OpModels, OpSearx, OpNVD}

// Policy decides whether a response should be discarded in favour of the
// next candidate.
type Policy func(status int) bool

// tryNextStatuses are the signals that an upstream does not implement the
// endpoint at all. Genuine failures (auth, rate limits, 5xx) are final.
var tryNextStatuses = []int{
	http.StatusNotFound,
	http.StatusMethodNotAllowed,
	http.StatusNotImplemented,
}

// TryNextUnimplemented fails over only on 404, 405 and 501.
func TryNextUnimplemented(status int) bool {
	return slices.Contains(tryNextStatuses, status)
}

// TryNextOnError fails over on any non-2xx status.
func TryNextOnError(status int) bool {
	return status < 200 || status > 299
}

// Endpoint is the configuration of one operation.
type Endpoint struct {
	// Path is appended to every candidate base URL.
	Path string

	// Candidates are base URLs tried strictly in order.
	Candidates []string

	// TryNext reports whether a status should fail over. Defaults to
	// TryNextUnimplemented.
	TryNext Policy

	// Timeout bounds each attempt, including reading the response body.
	// Zero leaves only the client and caller deadlines.
	Timeout time.Duration

	// Verify, when set, buffers every response the policy accepts and checks
	// it. A body that cannot be read or fails Verify moves on to the next
	// candidate as a network error would.
	Verify func(body []byte) error
}

// RequireJSON rejects bodies that are not a JSON document.
func RequireJSON(body []byte) error {
	if !gjson.ValidBytes(body) {
		return ErrInvalidBody
	}
	return nil
}

// Request is one logical upstream call.
type Request struct {
	Method string
	Header http.Header
	Query  url.Values

	// Body is forwarded as-is when there is a single candidate. With several
	// candidates it is buffered once and replayed for each attempt.
	Body          io.Reader
	ContentLength int64
}

// Result is the response chosen by the router.
type Result struct {
	Response  *http.Response
	Candidate string
	Attempts  int
}

// Observer receives one call per attempted candidate.
type Observer interface {
	ObserveAttempt(op Operation, candidate string, status int, err error, duration time.Duration)
}

func candidateURL(base, path string, query url.Values) string {
	u := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
