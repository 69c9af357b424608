package relay

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mandalnilabja/chatrelay/internal/transport/http/handler/shared"
	"github.com/mandalnilabja/chatrelay/internal/types"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// Searx result count bounds.
const (
	defaultSearxCount = 5
	minSearxCount     = 1
	maxSearxCount     = 10
)

// maxSearchDetail bounds the diagnostic attached to a failed search.
const maxSearchDetail = 220

// nvdResultsPerPage is the page size requested from the CVE database.
const nvdResultsPerPage = "5"

// cvePattern matches a CVE identifier anywhere in a query.
var cvePattern = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)

// searchFailure is the body of a searx relay that exhausted its instances.
type searchFailure struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
	Count  int    `json:"count"`
}

// Searx relays GET /search/searx?q=&count= to the first searx instance that
// answers with a 2xx status.
func (h *Handlers) Searx(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	count := searxCount(r.URL.Query().Get("count"))
	if q == "" {
		types.WriteError(w, http.StatusBadRequest, types.NewRelayError(types.ErrMsgMissingQuery))
		return
	}

	query := url.Values{}
	query.Set("q", q)
	query.Set("format", "json")
	query.Set("language", "en")
	query.Set("safesearch", "0")

	res, err := h.Router.Route(r.Context(), upstream.OpSearx, &upstream.Request{
		Method: http.MethodGet,
		Query:  query,
	})
	entry := newLogEntry(r, RouteSearx, start)

	var detail string
	if err != nil {
		detail = err.Error()
	} else {
		defer res.Response.Body.Close()
		body, readErr := io.ReadAll(res.Response.Body)
		switch {
		case readErr != nil:
			detail = readErr.Error()
		case res.Response.StatusCode >= 200 && res.Response.StatusCode < 300:
			applyResult(entry, res, nil)
			h.logRequest(entry)
			writeBody(w, http.StatusOK, "application/json; charset=utf-8", body)
			return
		default:
			detail = string(body)
		}
	}

	applyResult(entry, res, err)
	entry.StatusCode = http.StatusBadGateway
	entry.ErrorMessage = truncateBytes(detail, maxSearchDetail)
	h.logRequest(entry)

	shared.WriteJSON(w, searchFailure{
		Error:  types.ErrMsgSearchFailed,
		Detail: truncateBytes(detail, maxSearchDetail),
		Count:  count,
	}, http.StatusBadGateway)
}

// NVD relays GET /search/nvd?q= to the CVE database. A query naming a CVE
// identifier looks that CVE up; anything else is a keyword search. The
// upstream status and body are passed through.
func (h *Handlers) NVD(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		types.WriteError(w, http.StatusBadRequest, types.NewRelayError(types.ErrMsgMissingQuery))
		return
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	res, err := h.Router.Route(r.Context(), upstream.OpNVD, &upstream.Request{
		Method: http.MethodGet,
		Header: header,
		Query:  nvdQuery(q),
	})
	entry := newLogEntry(r, RouteNVD, start)
	if err != nil {
		applyResult(entry, nil, err)
		h.logRequest(entry)
		types.WriteError(w, http.StatusBadGateway, types.NewRelayError(types.ErrMsgUpstreamUnavailable))
		return
	}
	defer res.Response.Body.Close()

	body, err := io.ReadAll(res.Response.Body)
	applyResult(entry, res, err)
	h.logRequest(entry)
	if err != nil {
		types.WriteError(w, http.StatusBadGateway, types.NewRelayError(types.ErrMsgUpstreamUnavailable))
		return
	}

	writeBody(w, res.Response.StatusCode, "application/json; charset=utf-8", body)
}

// nvdQuery builds the CVE database query for q.
func nvdQuery(q string) url.Values {
	query := url.Values{}
	query.Set("resultsPerPage", nvdResultsPerPage)
	if id := cvePattern.FindString(q); id != "" {
		query.Set("cveId", strings.ToUpper(id))
	} else {
		query.Set("keywordSearch", q)
	}
	return query
}

// searxCount parses the requested result count, clamped to [1, 10].
func searxCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultSearxCount
	}
	return min(max(n, minSearxCount), maxSearxCount)
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
