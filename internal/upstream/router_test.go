package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// upstreamStub records the requests it received and answers with a fixed status.
type upstreamStub struct {
	status int
	body   string

	mu     sync.Mutex
	hits   int
	bodies []string
}

func (u *upstreamStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.hits++
		u.bodies = append(u.bodies, string(b))
		u.mu.Unlock()
		w.WriteHeader(u.status)
		_, _ = io.WriteString(w, u.body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (u *upstreamStub) hitCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits
}

func (u *upstreamStub) firstBody() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.bodies) == 0 {
		return ""
	}
	return u.bodies[0]
}

func newTestRouter(op Operation, bases ...string) *Router {
	return NewRouter(map[Operation]Endpoint{
		op: {Path: "/chat/completions", Candidates: bases},
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(b)
}

func TestRouter_FailsOverOnUnimplementedStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			first := &upstreamStub{status: status, body: "nope"}
			second := &upstreamStub{status: http.StatusOK, body: `{"ok":true}`}
			s1, s2 := first.server(t), second.server(t)

			router := newTestRouter(OpChat, s1.URL, s2.URL)
			res, err := router.Route(context.Background(), OpChat, &Request{Method: http.MethodPost, Body: strings.NewReader(`{"a":1}`)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Response.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", res.Response.StatusCode)
			}
			if got := readBody(t, res.Response); got != `{"ok":true}` {
				t.Errorf("expected second candidate body, got %q", got)
			}
			if res.Candidate != s2.URL {
				t.Errorf("expected candidate %s, got %s", s2.URL, res.Candidate)
			}
			if res.Attempts != 2 {
				t.Errorf("expected 2 attempts, got %d", res.Attempts)
			}
		})
	}
}

func TestRouter_GenuineErrorsAreFinal(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			first := &upstreamStub{status: status}
			second := &upstreamStub{status: http.StatusOK}
			s1, s2 := first.server(t), second.server(t)

			router := newTestRouter(OpChat, s1.URL, s2.URL)
			res, err := router.Route(context.Background(), OpChat, &Request{Method: http.MethodPost})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			res.Response.Body.Close()

			if res.Response.StatusCode != status {
				t.Errorf("expected status %d, got %d", status, res.Response.StatusCode)
			}
			if second.hitCount() != 0 {
				t.Errorf("expected second candidate untouched, got %d hits", second.hitCount())
			}
		})
	}
}

func TestRouter_ExhaustedReturnsLastResponse(t *testing.T) {
	first := &upstreamStub{status: http.StatusNotFound, body: "first"}
	second := &upstreamStub{status: http.StatusNotImplemented, body: "second"}
	s1, s2 := first.server(t), second.server(t)

	router := newTestRouter(OpModels, s1.URL, s2.URL)
	res, err := router.Route(context.Background(), OpModels, &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response.StatusCode != http.StatusNotImplemented {
		t.Errorf("expected last status 501, got %d", res.Response.StatusCode)
	}
	if got := readBody(t, res.Response); got != "second" {
		t.Errorf("expected last body, got %q", got)
	}
	if first.hitCount() != 1 || second.hitCount() != 1 {
		t.Errorf("expected each candidate tried once, got %d and %d", first.hitCount(), second.hitCount())
	}
}

func TestRouter_NetworkFailureOnly(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	router := newTestRouter(OpChat, dead.URL, dead.URL+"/")
	_, err := router.Route(context.Background(), OpChat, &Request{Method: http.MethodPost})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestRouter_NetworkFailureThenSuccess(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	live := &upstreamStub{status: http.StatusOK, body: "live"}
	s := live.server(t)

	router := newTestRouter(OpChat, dead.URL, s.URL)
	res, err := router.Route(context.Background(), OpChat, &Request{Method: http.MethodPost, Body: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readBody(t, res.Response); got != "live" {
		t.Errorf("expected live body, got %q", got)
	}
}

func TestRouter_ReplaysBufferedBody(t *testing.T) {
	first := &upstreamStub{status: http.StatusNotFound}
	second := &upstreamStub{status: http.StatusOK}
	s1, s2 := first.server(t), second.server(t)

	payload := `{"model":"default","stream":true}`
	router := newTestRouter(OpChat, s1.URL, s2.URL)
	res, err := router.Route(context.Background(), OpChat, &Request{Method: http.MethodPost, Body: strings.NewReader(payload)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Response.Body.Close()

	if first.firstBody() != payload || second.firstBody() != payload {
		t.Errorf("expected both candidates to receive the body, got %q and %q", first.firstBody(), second.firstBody())
	}
}

func TestRouter_ForwardsHeadersAndQuery(t *testing.T) {
	var gotQuery, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	router := NewRouter(map[Operation]Endpoint{
		OpSearx: {Path: "/search", Candidates: []string{srv.URL + "/"}, TryNext: TryNextOnError},
	})
	header := http.Header{}
	header.Set("Accept", "application/json")
	res, err := router.Route(context.Background(), OpSearx, &Request{
		Header: header,
		Query:  map[string][]string{"q": {"go sse"}, "format": {"json"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Response.Body.Close()

	if gotQuery != "format=json&q=go+sse" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if gotAccept != "application/json" {
		t.Errorf("expected Accept to be forwarded, got %q", gotAccept)
	}
}

func TestRouter_TryNextOnErrorPolicy(t *testing.T) {
	first := &upstreamStub{status: http.StatusInternalServerError}
	second := &upstreamStub{status: http.StatusOK, body: "results"}
	s1, s2 := first.server(t), second.server(t)

	router := NewRouter(map[Operation]Endpoint{
		OpSearx: {Path: "/search", Candidates: []string{s1.URL, s2.URL}, TryNext: TryNextOnError},
	})
	res, err := router.Route(context.Background(), OpSearx, &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readBody(t, res.Response); got != "results" {
		t.Errorf("expected second instance body, got %q", got)
	}
}

func TestRouter_UnknownOperation(t *testing.T) {
	router := NewRouter(nil)
	_, err := router.Route(context.Background(), OpChat, &Request{})
	if !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestRouter_CanceledContext(t *testing.T) {
	stub := &upstreamStub{status: http.StatusOK}
	s := stub.server(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	router := newTestRouter(OpChat, s.URL)
	_, err := router.Route(ctx, OpChat, &Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if stub.hitCount() != 0 {
		t.Errorf("expected no upstream hits, got %d", stub.hitCount())
	}
}

type recordingObserver struct {
	statuses []int
}

func (o *recordingObserver) ObserveAttempt(_ Operation, _ string, status int, _ error, _ time.Duration) {
	o.statuses = append(o.statuses, status)
}

func TestRouter_ObservesEveryAttempt(t *testing.T) {
	first := &upstreamStub{status: http.StatusNotFound}
	second := &upstreamStub{status: http.StatusOK}
	s1, s2 := first.server(t), second.server(t)

	obs := &recordingObserver{}
	router := NewRouter(map[Operation]Endpoint{
		OpModels: {Path: "/models", Candidates: []string{s1.URL, s2.URL}},
	}, WithObserver(obs))

	res, err := router.Route(context.Background(), OpModels, &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Response.Body.Close()

	if len(obs.statuses) != 2 || obs.statuses[0] != 404 || obs.statuses[1] != 200 {
		t.Errorf("unexpected observed statuses %v", obs.statuses)
	}
}

func TestRouter_CandidatesAreCopied(t *testing.T) {
	bases := []string{"https://a.example", "https://b.example"}
	router := newTestRouter(OpChat, bases...)
	bases[0] = "https://mutated.example"

	got := router.Candidates(OpChat)
	if got[0] != "https://a.example" {
		t.Errorf("expected candidates to be isolated from caller, got %v", got)
	}
}

func TestRouter_AttemptTimeoutFallsThrough(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)
	fast := &upstreamStub{status: http.StatusOK, body: `{"results":[]}`}
	s := fast.server(t)

	router := NewRouter(map[Operation]Endpoint{
		OpSearx: {
			Path:       "/search",
			Candidates: []string{slow.URL, s.URL},
			TryNext:    TryNextOnError,
			Timeout:    50 * time.Millisecond,
		},
	})

	res, err := router.Route(context.Background(), OpSearx, &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate != s.URL || res.Attempts != 2 {
		t.Errorf("expected second candidate after 2 attempts, got %s after %d", res.Candidate, res.Attempts)
	}
	if got := readBody(t, res.Response); got != `{"results":[]}` {
		t.Errorf("unexpected body %q", got)
	}
}

func TestRouter_VerifyFallsThrough(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "truncated body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Length", "100")
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, `{"res`)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, "<html>rate limited</html>")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := httptest.NewServer(tt.handler)
			t.Cleanup(broken.Close)
			good := &upstreamStub{status: http.StatusOK, body: `{"results":[1]}`}
			s := good.server(t)

			router := NewRouter(map[Operation]Endpoint{
				OpSearx: {
					Path:       "/search",
					Candidates: []string{broken.URL, s.URL},
					TryNext:    TryNextOnError,
					Verify:     RequireJSON,
				},
			})

			res, err := router.Route(context.Background(), OpSearx, &Request{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Candidate != s.URL {
				t.Errorf("expected second candidate, got %s", res.Candidate)
			}
			if got := readBody(t, res.Response); got != `{"results":[1]}` {
				t.Errorf("unexpected body %q", got)
			}
		})
	}
}

func TestRouter_VerifyExhausted(t *testing.T) {
	broken := &upstreamStub{status: http.StatusOK, body: "not json"}
	s := broken.server(t)

	router := NewRouter(map[Operation]Endpoint{
		OpSearx: {Path: "/search", Candidates: []string{s.URL}, Verify: RequireJSON},
	})

	_, err := router.Route(context.Background(), OpSearx, &Request{})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), ErrInvalidBody.Error()) {
		t.Errorf("expected the verify failure in the error, got %v", err)
	}
}

func TestRouter_VerifySkipsRejectedStatus(t *testing.T) {
	var checked int
	down := &upstreamStub{status: http.StatusServiceUnavailable, body: "maintenance"}
	s := down.server(t)

	router := NewRouter(map[Operation]Endpoint{
		OpSearx: {
			Path:       "/search",
			Candidates: []string{s.URL},
			TryNext:    TryNextOnError,
			Verify:     func([]byte) error { checked++; return nil },
		},
	})

	res, err := router.Route(context.Background(), OpSearx, &Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response.StatusCode != http.StatusServiceUnavailable || readBody(t, res.Response) != "maintenance" {
		t.Errorf("expected the rejected response to be returned as is")
	}
	if checked != 0 {
		t.Errorf("Verify ran %d times on a rejected status", checked)
	}
}
