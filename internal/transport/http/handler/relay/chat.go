package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mandalnilabja/chatrelay/internal/types"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// maxChatBodyBytes bounds the buffered chat request body.
const maxChatBodyBytes = 8 << 20

// tokenCountTimeout is the maximum time to wait for token counting once the
// response has been relayed.
const tokenCountTimeout = 100 * time.Millisecond

// ChatCompletions relays POST /chat/completions. The upstream response is
// passed through with its status and streamed to the client chunk by chunk.
func (h *Handlers) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			types.WriteError(w, http.StatusRequestEntityTooLarge, types.NewRelayError("Request body too large"))
			return
		}
		types.WriteError(w, http.StatusBadRequest, types.NewRelayError("Failed to read request body"))
		return
	}
	r.Body.Close()

	// Token counting runs alongside the upstream call.
	tokensChan := h.countPromptTokens(body)

	header := upstream.RelayHeaders(r.Header, upstream.ChatHeaders...)
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}

	res, err := h.Router.Route(r.Context(), upstream.OpChat, &upstream.Request{
		Method:        http.MethodPost,
		Header:        header,
		Body:          bytes.NewReader(body),
		ContentLength: int64(len(body)),
	})

	entry := &chatLog{
		model:     gjson.GetBytes(body, "model").String(),
		streaming: gjson.GetBytes(body, "stream").Bool(),
	}
	if err != nil {
		if r.Context().Err() == nil {
			h.Logger.Error("chat upstream unavailable", "error", err)
			types.WriteError(w, http.StatusBadGateway, types.NewRelayError(types.ErrMsgUpstreamUnavailable))
		}
		h.finishChat(r, start, entry, nil, err, tokensChan)
		return
	}
	defer res.Response.Body.Close()

	copyResponseHeaders(w.Header(), res.Response.Header)
	w.WriteHeader(res.Response.StatusCode)

	if _, err := streamBody(w, res.Response.Body); err != nil {
		entry.streamErr = err
		h.Logger.Debug("chat stream interrupted", "candidate", res.Candidate, "error", err)
	}
	h.finishChat(r, start, entry, res, nil, tokensChan)
}

// chatLog carries the request-specific log fields of a chat relay.
type chatLog struct {
	model     string
	streaming bool
	streamErr error
}

// countPromptTokens counts prompt tokens in the background. The channel is
// closed without a value when the body is not a chat request.
func (h *Handlers) countPromptTokens(body []byte) <-chan int {
	tokensChan := make(chan int, 1)
	go func() {
		defer close(tokensChan)
		if h.Tokenizer == nil {
			return
		}
		var req types.ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}
		if tokens, err := h.Tokenizer.CountRequest(&req); err == nil {
			tokensChan <- tokens
		}
	}()
	return tokensChan
}

func (h *Handlers) finishChat(r *http.Request, start time.Time, cl *chatLog, res *upstream.Result, routeErr error, tokensChan <-chan int) {
	var promptTokens int
	select {
	case tokens, ok := <-tokensChan:
		if ok {
			promptTokens = tokens
		}
	case <-time.After(tokenCountTimeout):
	}

	entry := newLogEntry(r, RouteChat, start)
	applyResult(entry, res, routeErr)
	entry.Model = cl.model
	entry.IsStreaming = cl.streaming
	entry.PromptTokens = promptTokens
	if cl.streamErr != nil && entry.ErrorMessage == "" {
		entry.ErrorMessage = cl.streamErr.Error()
	}
	h.logRequest(entry)
}
