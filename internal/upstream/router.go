package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Router sends each operation to its candidates in order.
// Endpoints are read-only after construction and safe for concurrent use.
type Router struct {
	endpoints map[Operation]Endpoint
	client    *http.Client
	logger    *slog.Logger
	observer  Observer
}

// Option configures a Router.
type Option func(*Router)

// WithClient overrides the HTTP client used for upstream calls.
func WithClient(c *http.Client) Option {
	return func(r *Router) { r.client = c }
}

// WithLogger sets the logger for per-attempt debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithObserver registers an attempt observer (metrics).
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// NewRouter creates a Router for the given endpoints.
func NewRouter(endpoints map[Operation]Endpoint, opts ...Option) *Router {
	r := &Router{
		endpoints: make(map[Operation]Endpoint, len(endpoints)),
		client:    NewClient(10*time.Second, 5*time.Minute),
		logger:    slog.Default(),
	}
	// Copy so later mutation of the caller's slices cannot reorder candidates.
	for op, ep := range endpoints {
		ep.Candidates = append([]string(nil), ep.Candidates...)
		if ep.TryNext == nil {
			ep.TryNext = TryNextUnimplemented
		}
		r.endpoints[op] = ep
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewClient builds the upstream HTTP client. connectTimeout bounds dialing a
// candidate; requestTimeout bounds the whole exchange including the body, so
// it must leave room for long generations.
func NewClient(connectTimeout, requestTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			Proxy:       http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			// Compressed bodies would be buffered by the transport and break streaming.
			DisableCompression:  true,
			TLSHandshakeTimeout: connectTimeout,
			MaxIdleConnsPerHost: 8,
		},
	}
}

// Candidates returns the candidate base URLs of op.
func (r *Router) Candidates(op Operation) []string {
	return append([]string(nil), r.endpoints[op].Candidates...)
}

// Route tries the candidates of op in order and returns the first response
// whose status the endpoint policy does not reject. When every candidate was
// rejected the last rejected response is returned. ErrUpstreamUnavailable is
// returned only when no candidate produced a response at all.
//
// The caller owns Result.Response.Body.
func (r *Router) Route(ctx context.Context, op Operation, req *Request) (*Result, error) {
	ep, ok := r.endpoints[op]
	if !ok || len(ep.Candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	body, err := r.prepareBody(req, len(ep.Candidates))
	if err != nil {
		return nil, err
	}

	var (
		last     *Result
		lastErr  error
		attempts int
	)
	for _, base := range ep.Candidates {
		if err := ctx.Err(); err != nil {
			closeResult(last)
			return nil, err
		}

		attempts++
		start := time.Now()
		resp, err := r.send(ctx, base, ep, req, body)
		r.observe(op, base, resp, err, time.Since(start))

		if err != nil {
			r.logger.Debug("upstream attempt failed", "op", op, "candidate", base, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				closeResult(last)
				return nil, ctx.Err()
			}
			continue
		}

		res := &Result{Response: resp, Candidate: base, Attempts: attempts}
		if !ep.TryNext(resp.StatusCode) {
			if ep.Verify != nil {
				if err := verifyBody(resp, ep.Verify); err != nil {
					r.logger.Debug("upstream body rejected", "op", op, "candidate", base, "error", err)
					lastErr = err
					if ctx.Err() != nil {
						closeResult(last)
						return nil, ctx.Err()
					}
					continue
				}
			}
			closeResult(last)
			return res, nil
		}

		r.logger.Debug("upstream candidate rejected", "op", op, "candidate", base, "status", resp.StatusCode)
		closeResult(last)
		last = res
	}

	if last != nil {
		last.Attempts = attempts
		return last, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
	}
	return nil, ErrUpstreamUnavailable
}

// verifyBody reads resp fully, checks it and replaces resp.Body with the
// buffered copy. The original body is always closed.
func verifyBody(resp *http.Response, verify func([]byte) error) error {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := verify(body); err != nil {
		return err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return nil
}

// bodySource yields a fresh reader per attempt.
type bodySource func() io.Reader

func (r *Router) prepareBody(req *Request, candidates int) (bodySource, error) {
	if req.Body == nil {
		return func() io.Reader { return nil }, nil
	}
	if candidates == 1 {
		return func() io.Reader { return req.Body }, nil
	}

	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() io.Reader { return bytes.NewReader(buf) }, nil
}

func (r *Router) send(ctx context.Context, base string, ep Endpoint, req *Request, body bodySource) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	cancel := context.CancelFunc(func() {})
	if ep.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, method, candidateURL(base, ep.Path, req.Query), body())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.ContentLength > 0 && upstreamReq.ContentLength == 0 {
		upstreamReq.ContentLength = req.ContentLength
	}
	for k, v := range req.Header {
		upstreamReq.Header[k] = v
	}

	resp, err := r.client.Do(upstreamReq)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the attempt deadline once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (r *Router) observe(op Operation, candidate string, resp *http.Response, err error, d time.Duration) {
	if r.observer == nil {
		return
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	r.observer.ObserveAttempt(op, candidate, status, err, d)
}

func closeResult(res *Result) {
	if res != nil && res.Response != nil && res.Response.Body != nil {
		res.Response.Body.Close()
	}
}
