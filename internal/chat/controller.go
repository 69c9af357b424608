package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mandalnilabja/chatrelay/internal/sse"
)

const (
	// FrameInterval is the minimum spacing of non-final sink updates.
	FrameInterval = 16 * time.Millisecond

	revealMinChunk  = 24
	revealMaxChunk  = 140
	revealDivisions = 52
)

// Controller runs the completion requests of one conversation. At most one
// request is in flight; a new Ask cancels the previous one and waits for it
// to finish before sending.
type Controller struct {
	session *Session
	client  Completer
	sink    Sink
	logger  *slog.Logger

	timeout time.Duration
	frame   time.Duration
	tick    time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithRequestTimeout bounds each attempt. It defaults to DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.timeout = d }
}

// WithFrameInterval sets the minimum spacing of streaming updates and the
// pacing of revealed non-streaming text. Non-positive values are ignored.
func WithFrameInterval(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.frame = d
			c.tick = d
		}
	}
}

// NewController creates an idle Controller.
func NewController(session *Session, client Completer, sink Sink, opts ...ControllerOption) *Controller {
	c := &Controller{
		session: session,
		client:  client,
		sink:    sink,
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
		frame:   FrameInterval,
		tick:    FrameInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the session the controller was created with.
func (c *Controller) Session() *Session {
	return c.session
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel aborts the in-flight request, if any. The request's final update is
// delivered by the goroutine running Ask. Calling Cancel when idle or more
// than once has no effect.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked(ErrCanceled)
}

func (c *Controller) cancelLocked(cause error) {
	if c.state == StateIdle || c.cancel == nil {
		return
	}
	c.state = StateCanceling
	c.cancel(cause)
}

// Ask runs req to completion, cancellation or failure, notifying the sink as
// text arrives. It blocks until the controller is idle again.
func (c *Controller) Ask(ctx context.Context, req Request) Result {
	ctx, cancel, done := c.begin(ctx)
	defer c.finish(cancel, done)

	r := &run{c: c}
	err := r.attempt(ctx, req, req.Streaming)
	if err != nil && req.Streaming && ctx.Err() == nil {
		c.logger.Warn("streaming failed, retrying without streaming", "error", err)
		c.setState(StateRetrying)
		err = r.attempt(ctx, req, false)
	}

	switch {
	case ctx.Err() != nil:
		return r.canceled(context.Cause(ctx))
	case err != nil:
		return r.failed(err)
	}

	c.setState(StateFinalizing)
	r.emit(Update{Text: r.text, Final: true})
	return Result{Outcome: OutcomeCompleted, Text: r.text}
}

// begin waits for any in-flight request to be canceled and drained, then
// claims the controller.
func (c *Controller) begin(parent context.Context) (context.Context, context.CancelCauseFunc, chan struct{}) {
	for {
		c.mu.Lock()
		if c.state == StateIdle {
			ctx, cancel := context.WithCancelCause(parent)
			c.state = StateSending
			c.cancel = cancel
			c.done = make(chan struct{})
			done := c.done
			c.mu.Unlock()
			return ctx, cancel, done
		}
		c.cancelLocked(ErrSuperseded)
		done := c.done
		c.mu.Unlock()
		<-done
	}
}

func (c *Controller) finish(cancel context.CancelCauseFunc, done chan struct{}) {
	cancel(nil)
	c.mu.Lock()
	c.state = StateIdle
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	close(done)
}

// setState moves to s unless a cancellation is already under way.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCanceling {
		c.state = s
	}
}

// run holds the accumulated text of one Ask.
type run struct {
	c    *Controller
	text string
}

func (r *run) emit(u Update) {
	r.c.sink.Update(u)
}

func (r *run) canceled(cause error) Result {
	if r.text == "" {
		r.text = CanceledPlaceholder
	}
	r.c.logger.Debug("request canceled", "cause", cause)
	r.emit(Update{Text: r.text, Final: true, Canceled: true})
	return Result{Outcome: OutcomeCanceled, Text: r.text, Err: cause}
}

func (r *run) failed(err error) Result {
	r.text = ErrorPrefix + err.Error()
	r.c.logger.Error("request failed", "error", err)
	r.emit(Update{Text: r.text, Final: true, Failed: true})
	return Result{Outcome: OutcomeFailed, Text: r.text, Err: err}
}

// attempt performs one call. A streamed body is decoded delta by delta; a
// single JSON document is revealed progressively.
func (r *run) attempt(ctx context.Context, req Request, stream bool) error {
	callCtx, cancel := context.WithTimeout(ctx, r.c.timeout)
	defer cancel()

	resp, err := r.c.client.Complete(callCtx, req.body(stream))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !stream || sse.IsJSON(resp.Header.Get("Content-Type")) {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		text, err := sse.DecodeMessage(body)
		if err != nil {
			return err
		}
		return r.reveal(ctx, text)
	}

	r.c.setState(StateStreaming)
	return r.stream(callCtx, resp.Body)
}

// streamItem is one result of sse.Stream.Next.
type streamItem struct {
	delta sse.Delta
	err   error
}

// stream applies deltas in receipt order. Sink updates are coalesced to at
// most one per frame: a delta refused by the limiter arms a timer, and the
// latest text is sent when it fires. The final update is sent by Ask.
func (r *run) stream(ctx context.Context, body io.Reader) error {
	s := sse.NewStream(ctx, body)
	defer s.Close()

	// The reader goroutine exits right after delivering an error, io.EOF
	// included, so s is not shared once this function returns.
	items := make(chan streamItem)
	go func() {
		for {
			d, err := s.Next()
			items <- streamItem{delta: d, err: err}
			if err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Every(r.c.frame), 1)
	var (
		timer *time.Timer
		flush <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case it := <-items:
			if errors.Is(it.err, io.EOF) {
				r.c.logger.Debug("stream ended", "sentinel", s.Terminated(), "chars", len(r.text))
				return nil
			}
			if it.err != nil {
				return it.err
			}
			r.text = it.delta.Apply(r.text)
			if flush != nil {
				continue
			}
			if delay := limiter.Reserve().Delay(); delay > 0 {
				timer = time.NewTimer(delay)
				flush = timer.C
				continue
			}
			r.emit(Update{Text: r.text})
		case <-flush:
			flush = nil
			r.emit(Update{Text: r.text})
		}
	}
}

// reveal shows text in growing prefixes, one per tick, replacing whatever was
// accumulated before. It stops early when ctx is done.
func (r *run) reveal(ctx context.Context, text string) error {
	runes := []rune(text)
	r.text = ""
	if len(runes) == 0 {
		return nil
	}
	step := min(max(len(runes)/revealDivisions, revealMinChunk), revealMaxChunk)

	ticker := time.NewTicker(r.c.tick)
	defer ticker.Stop()

	for i := 0; ; {
		if err := ctx.Err(); err != nil {
			return err
		}
		i = min(i+step, len(runes))
		r.text = string(runes[:i])
		if i == len(runes) {
			return nil
		}
		r.emit(Update{Text: r.text})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
