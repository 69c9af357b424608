package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mandalnilabja/chatrelay/internal/types"
)

// Live search limits.
const (
	searxTimeout     = 12 * time.Second
	nvdTimeout       = 14 * time.Second
	webResultCount   = 5
	maxCVEResults    = 5
	maxSnippetRunes  = 360
	contextTimestamp = "2006-01-02T15:04:05.000Z07:00"
)

var (
	cvePattern     = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)
	searchTriggers = regexp.MustCompile(`(?i)\b(search|look\s*up|lookup|find|latest|recent|newest|today|this\s+week|current|news|what(?:'| i)s new)\b`)
)

// IntentKind says which sources a question should be grounded on.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentWeb
	IntentCVE
)

// Intent is the search a user message asks for.
type Intent struct {
	Kind  IntentKind
	Query string
}

// DetectIntent looks for a CVE identifier first, then for wording that asks
// for fresh information. A CVE query is the identifier alone, upper-cased.
func DetectIntent(text string) Intent {
	if id := cvePattern.FindString(text); id != "" {
		return Intent{Kind: IntentCVE, Query: strings.ToUpper(id)}
	}
	if searchTriggers.MatchString(text) {
		return Intent{Kind: IntentWeb, Query: collapseSpace(text)}
	}
	return Intent{Kind: IntentNone}
}

// WebResult is one searx hit.
type WebResult struct {
	Title   string
	URL     string
	Snippet string
}

// CVEResult is one vulnerability record.
type CVEResult struct {
	ID           string
	Summary      string
	Published    string
	LastModified string
	URL          string
}

// Searcher queries the relay's search routes.
type Searcher interface {
	Searx(ctx context.Context, query string, count int) ([]WebResult, error)
	NVD(ctx context.Context, query string) ([]CVEResult, error)
}

// Searx implements Searcher.
func (c *Client) Searx(ctx context.Context, query string, count int) ([]WebResult, error) {
	ctx, cancel := context.WithTimeout(ctx, searxTimeout)
	defer cancel()

	count = min(max(count, 1), 10)
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))

	body, err := c.get(ctx, "/search/searx?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("searx: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("searx: %w", ErrInvalidSearchBody)
	}

	var out []WebResult
	for _, r := range gjson.GetBytes(body, "results").Array() {
		title := collapseSpace(r.Get("title").String())
		link := strings.TrimSpace(r.Get("url").String())
		snippet := r.Get("content").String()
		if snippet == "" {
			snippet = r.Get("snippet").String()
		}
		snippet = collapseSpace(snippet)
		if title == "" && link == "" && snippet == "" {
			continue
		}
		if title == "" {
			title = link
		}
		if title == "" {
			title = "Result"
		}
		out = append(out, WebResult{Title: title, URL: link, Snippet: truncate(snippet, maxSnippetRunes)})
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

// NVD implements Searcher.
func (c *Client) NVD(ctx context.Context, query string) ([]CVEResult, error) {
	ctx, cancel := context.WithTimeout(ctx, nvdTimeout)
	defer cancel()

	body, err := c.get(ctx, "/search/nvd?"+url.Values{"q": {query}}.Encode())
	if err != nil {
		return nil, fmt.Errorf("nvd: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("nvd: %w", ErrInvalidSearchBody)
	}

	var out []CVEResult
	for _, v := range gjson.GetBytes(body, "vulnerabilities").Array() {
		cve := v.Get("cve")
		res := CVEResult{
			ID:           strings.TrimSpace(cve.Get("id").String()),
			Summary:      truncate(collapseSpace(cveDescription(cve)), maxSnippetRunes),
			Published:    firstString(cve, "published", "publishedDate"),
			LastModified: firstString(cve, "lastModified", "lastModifiedDate"),
		}
		if res.ID == "" {
			res.ID = "CVE"
		}
		for _, ref := range cve.Get("references").Array() {
			if u := ref.Get("url").String(); u != "" {
				res.URL = u
				break
			}
		}
		out = append(out, res)
		if len(out) >= maxCVEResults {
			break
		}
	}
	return out, nil
}

// cveDescription prefers the English description.
func cveDescription(cve gjson.Result) string {
	descs := cve.Get("descriptions").Array()
	for _, d := range descs {
		if d.Get("lang").String() == "en" {
			if v := d.Get("value").String(); v != "" {
				return v
			}
		}
	}
	if len(descs) > 0 {
		return descs[0].Get("value").String()
	}
	return ""
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}

// ContextBlock renders search results as grounding for the model.
func ContextBlock(intent Intent, web []WebResult, cves []CVEResult, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("[LIVE_SEARCH_CONTEXT]")
	line("Time: %s", now.UTC().Format(contextTimestamp))
	line("Query: %s", intent.Query)
	line("")
	line("Instructions:")
	line("- Use the results as grounding. If results conflict, say so.")
	line("- Cite sources with bracket numbers like [W1] or [N1] when you use them.")
	line("- If live data is insufficient, answer from general knowledge and say what was missing.")
	line("")

	if len(web) > 0 {
		line("[WEB_RESULTS]")
		for i, r := range web {
			line("[W%d] %s", i+1, r.Title)
			if r.URL != "" {
				line("URL: %s", r.URL)
			}
			if r.Snippet != "" {
				line("Snippet: %s", r.Snippet)
			}
			line("")
		}
	}

	if len(cves) > 0 {
		line("[NVD_RESULTS]")
		for i, r := range cves {
			line("[N%d] %s", i+1, r.ID)
			if r.Published != "" {
				line("Published: %s", r.Published)
			}
			if r.LastModified != "" {
				line("LastModified: %s", r.LastModified)
			}
			if r.URL != "" {
				line("Reference: %s", r.URL)
			}
			if r.Summary != "" {
				line("Summary: %s", r.Summary)
			}
			line("")
		}
	}

	b.WriteString("[END_LIVE_SEARCH_CONTEXT]")
	return b.String()
}

// Enrich grounds req on live search results when its latest user message
// asks for them. The context block is inserted as a second system message,
// right after the system prompt. Any search failure leaves req unchanged.
func (s *Session) Enrich(ctx context.Context, req Request, searcher Searcher) Request {
	if !s.LiveSearch || searcher == nil {
		return req
	}
	intent := DetectIntent(latestUserText(req.Messages))
	if intent.Kind == IntentNone {
		return req
	}

	web, err := searcher.Searx(ctx, intent.Query, webResultCount)
	if err != nil {
		slog.Debug("live search failed", "source", "searx", "error", err)
		return req
	}
	var cves []CVEResult
	if intent.Kind == IntentCVE {
		cves, err = searcher.NVD(ctx, intent.Query)
		if err != nil {
			slog.Debug("live search failed", "source", "nvd", "error", err)
			return req
		}
	}

	block := types.NewTextMessage(types.RoleSystem, ContextBlock(intent, web, cves, time.Now()))
	at := 0
	if len(req.Messages) > 0 && req.Messages[0].Role == types.RoleSystem {
		at = 1
	}
	messages := make([]types.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages[:at]...)
	messages = append(messages, block)
	messages = append(messages, req.Messages[at:]...)
	req.Messages = messages
	return req
}

// latestUserText returns the content of the last user message.
func latestUserText(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
