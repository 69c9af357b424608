package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

func searxEndpoint(bases ...string) map[upstream.Operation]upstream.Endpoint {
	return map[upstream.Operation]upstream.Endpoint{
		upstream.OpSearx: {
			Path:       "/search",
			Candidates: bases,
			TryNext:    upstream.TryNextOnError,
			Verify:     upstream.RequireJSON,
		},
	}
}

func nvdEndpoint(bases ...string) map[upstream.Operation]upstream.Endpoint {
	return map[upstream.Operation]upstream.Endpoint{
		upstream.OpNVD: {Path: "/rest/json/cves/2.0", Candidates: bases},
	}
}

func search(handler http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearx_MissingQuery(t *testing.T) {
	up := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called without a query")
	})
	h, _ := newHandlers(t, searxEndpoint(up.URL))

	for _, target := range []string{"/search/searx", "/search/searx?q=", "/search/searx?q=%20%20"} {
		rec := search(h.Searx, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, rec.Code)
		}
		if got := gjson.Get(rec.Body.String(), "error").String(); got != "Missing q" {
			t.Errorf("%s: unexpected body %q", target, rec.Body.String())
		}
	}
}

func TestSearx_QueryAndFailover(t *testing.T) {
	queries := make(chan url.Values, 2)
	broken := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "rate limited")
	})
	working := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		_, _ = io.WriteString(w, `{"results":[{"title":"Go"}]}`)
	})
	h, logs := newHandlers(t, searxEndpoint(broken.URL, working.URL))

	rec := search(h.Searx, "/search/searx?q=%20golang%20generics%20&count=3")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"results":[{"title":"Go"}]}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}

	for i := 0; i < 2; i++ {
		q := <-queries
		if q.Get("q") != "golang generics" || q.Get("format") != "json" || q.Get("language") != "en" || q.Get("safesearch") != "0" {
			t.Errorf("unexpected upstream query %v", q)
		}
	}

	h.Wait()
	if entry := logs.only(t); entry.Candidate != working.URL || entry.Attempts != 2 || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected log entry %+v", entry)
	}
}

func TestSearx_Exhausted(t *testing.T) {
	long := strings.Repeat("x", 300)
	first := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "first failure")
	})
	last := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, long)
	})

	tests := []struct {
		name       string
		target     string
		bases      []string
		wantCount  int64
		wantDetail string
	}{
		{
			name:       "last body is truncated",
			target:     "/search/searx?q=go&count=50",
			bases:      []string{first.URL, last.URL},
			wantCount:  10,
			wantDetail: long[:220],
		},
		{
			name:       "count is clamped up",
			target:     "/search/searx?q=go&count=-4",
			bases:      []string{first.URL},
			wantCount:  1,
			wantDetail: "first failure",
		},
		{
			name:       "unparseable count uses default",
			target:     "/search/searx?q=go&count=lots",
			bases:      []string{first.URL},
			wantCount:  5,
			wantDetail: "first failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newHandlers(t, searxEndpoint(tt.bases...))

			rec := search(h.Searx, tt.target)

			if rec.Code != http.StatusBadGateway {
				t.Fatalf("expected status 502, got %d", rec.Code)
			}
			body := rec.Body.String()
			if got := gjson.Get(body, "error").String(); got != "Search upstream failed" {
				t.Errorf("unexpected error %q", got)
			}
			if got := gjson.Get(body, "detail").String(); got != tt.wantDetail {
				t.Errorf("detail = %q, want %q", got, tt.wantDetail)
			}
			if got := gjson.Get(body, "count").Int(); got != tt.wantCount {
				t.Errorf("count = %d, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestSearx_NetworkFailureDetail(t *testing.T) {
	h, _ := newHandlers(t, searxEndpoint(closedServerURL(t)))

	rec := search(h.Searx, "/search/searx?q=go")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	if detail := gjson.Get(rec.Body.String(), "detail").String(); detail == "" || len(detail) > 220 {
		t.Errorf("expected a short network error detail, got %q", detail)
	}
}

func TestSearx_UnreadableBodyTriesNextInstance(t *testing.T) {
	truncated := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "64")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"resu`)
	})
	html := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>captcha</html>")
	})
	working := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[]}`)
	})
	h, logs := newHandlers(t, searxEndpoint(truncated.URL, html.URL, working.URL))

	rec := search(h.Searx, "/search/searx?q=go")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"results":[]}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	h.Wait()
	if entry := logs.only(t); entry.Candidate != working.URL || entry.Attempts != 3 {
		t.Errorf("expected the third instance after 3 attempts, got %+v", entry)
	}
}

func TestNVDQuery(t *testing.T) {
	tests := []struct {
		q           string
		wantCVE     string
		wantKeyword string
	}{
		{q: "CVE-2021-44228", wantCVE: "CVE-2021-44228"},
		{q: "tell me about cve-2014-0160 please", wantCVE: "CVE-2014-0160"},
		{q: "CVE-2023-1234567", wantCVE: "CVE-2023-1234567"},
		{q: "log4j remote code execution", wantKeyword: "log4j remote code execution"},
		{q: "CVE-21-1234", wantKeyword: "CVE-21-1234"},
		{q: "XCVE-2021-44228", wantKeyword: "XCVE-2021-44228"},
	}

	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			q := nvdQuery(tt.q)
			if q.Get("resultsPerPage") != "5" {
				t.Errorf("expected resultsPerPage=5, got %q", q.Get("resultsPerPage"))
			}
			if q.Get("cveId") != tt.wantCVE {
				t.Errorf("cveId = %q, want %q", q.Get("cveId"), tt.wantCVE)
			}
			if q.Get("keywordSearch") != tt.wantKeyword {
				t.Errorf("keywordSearch = %q, want %q", q.Get("keywordSearch"), tt.wantKeyword)
			}
		})
	}
}

func TestNVD_PassesStatusAndBody(t *testing.T) {
	type seen struct {
		path   string
		query  url.Values
		accept string
	}
	requests := make(chan seen, 1)
	up := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests <- seen{path: r.URL.Path, query: r.URL.Query(), accept: r.Header.Get("Accept")}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"not found"}`)
	})
	h, _ := newHandlers(t, nvdEndpoint(up.URL))

	rec := search(h.NVD, "/search/nvd?q=CVE-2021-44228")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 passed through, got %d", rec.Code)
	}
	if rec.Body.String() != `{"message":"not found"}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	got := <-requests
	if got.path != "/rest/json/cves/2.0" {
		t.Errorf("unexpected path %q", got.path)
	}
	if got.query.Get("cveId") != "CVE-2021-44228" {
		t.Errorf("unexpected query %v", got.query)
	}
	if got.accept != "application/json" {
		t.Errorf("expected Accept application/json, got %q", got.accept)
	}
}

func TestNVD_MissingQueryAndUnavailable(t *testing.T) {
	h, _ := newHandlers(t, nvdEndpoint(closedServerURL(t)))

	if rec := search(h.NVD, "/search/nvd"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without q, got %d", rec.Code)
	}

	rec := search(h.NVD, "/search/nvd?q=openssl")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "error").String(); got != "Upstream unavailable" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}
