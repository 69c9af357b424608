// Command chat is a terminal client for the relay. Conversations are kept in
// the same SQLite database the server uses.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/chat"
	"github.com/mandalnilabja/chatrelay/internal/config"
	"github.com/mandalnilabja/chatrelay/internal/storage"
	"github.com/mandalnilabja/chatrelay/internal/tokenizer"
	"github.com/mandalnilabja/chatrelay/internal/types"
)

const defaultRelayURL = "http://localhost:8080/api"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		os.Exit(cmdChat())
	case "list":
		os.Exit(cmdList())
	case "models":
		os.Exit(cmdModels())
	case "ping":
		os.Exit(cmdPing())
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: chat <command> [flags]")
	fmt.Fprintln(os.Stderr, "Commands: chat, list, models, ping")
}

// sessionFlags registers the flags shared by commands that talk to the relay.
func sessionFlags(fs *flag.FlagSet) func() *chat.Session {
	url := fs.String("url", envOr("CHATRELAY_URL", defaultRelayURL), "Relay base URL")
	token := fs.String("token", os.Getenv("CHATRELAY_TOKEN"), "Bearer token forwarded upstream")
	model := fs.String("model", chat.DefaultModel, "Model name")
	temperature := fs.Float64("temperature", chat.DefaultTemperature, "Sampling temperature")
	maxTokens := fs.Int("max-tokens", 0, "Completion token limit (0 leaves it unset)")
	noStream := fs.Bool("no-stream", false, "Request a single JSON completion")
	system := fs.String("system", chat.DefaultSystemPrompt, "System prompt")
	budget := fs.Int("budget", 0, "Prompt token budget (0 disables trimming)")
	noSearch := fs.Bool("no-search", false, "Do not ground questions on live search results")

	return func() *chat.Session {
		s := chat.NewSession(strings.TrimRight(*url, "/"), *token)
		s.Model = *model
		s.Temperature = *temperature
		s.Streaming = !*noStream
		s.SystemPrompt = *system
		s.TokenBudget = *budget
		s.LiveSearch = !*noSearch
		if *maxTokens > 0 {
			s.MaxTokens = maxTokens
		}
		return s
	}
}

func cmdChat() int {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	session := sessionFlags(fs)
	convoID := fs.String("c", "", "Conversation ID to continue")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Parse(os.Args[2:])

	logger := newLogger(*verbose)
	slog.SetDefault(logger)
	store, err := openStore()
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return 1
	}
	defer store.Close()

	convo, err := loadConversation(store, *convoID)
	if err != nil {
		logger.Error("failed to load conversation", "id", *convoID, "error", err)
		return 1
	}

	s := session()
	client := chat.NewClient(s, nil)
	ctrl := chat.NewController(s, client, newTerminalSink(os.Stdout), chat.WithLogger(logger))

	// Ctrl-C cancels the search or reply in flight; when idle it ends the
	// session.
	var search pendingSearch
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if search.cancel() {
				continue
			}
			if ctrl.State() != chat.StateIdle {
				ctrl.Cancel()
				continue
			}
			os.Stdin.Close()
			return
		}
	}()

	if convo.ID != "" {
		fmt.Fprintf(os.Stderr, "Continuing %q (%s)\n", convo.Title, convo.ID)
	}
	fmt.Fprintln(os.Stderr, "Type a message and press Enter. Ctrl-C cancels a reply; Ctrl-C again or Ctrl-D quits.")

	counter := tokenizer.New()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		convo.Append(types.NewTextMessage(types.RoleUser, text))
		req, err := s.Compose(convo.Messages, counter)
		if err != nil {
			logger.Error("failed to compose request", "error", err)
			return 1
		}

		if s.LiveSearch && chat.DetectIntent(text).Kind != chat.IntentNone {
			fmt.Fprintln(os.Stderr, "searching...")
			ctx := search.begin()
			req = s.Enrich(ctx, req, client)
			search.end()
		}

		res := ctrl.Ask(context.Background(), req)
		convo.SetLastAssistant(res.Text)
		if err := store.PutConversation(convo); err != nil {
			logger.Warn("failed to save conversation", "error", err)
		}
	}

	if convo.ID != "" {
		fmt.Fprintf(os.Stderr, "\nSaved as %s\n", convo.ID)
	}
	return 0
}

// pendingSearch lets the signal handler cancel a live search.
type pendingSearch struct {
	mu   sync.Mutex
	stop context.CancelFunc
}

func (p *pendingSearch) begin() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.stop = cancel
	p.mu.Unlock()
	return ctx
}

func (p *pendingSearch) end() {
	p.mu.Lock()
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	p.mu.Unlock()
}

// cancel stops the search in flight and reports whether there was one.
func (p *pendingSearch) cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return false
	}
	p.stop()
	p.stop = nil
	return true
}

// loadConversation returns the stored conversation id, or a new one when id
// is empty.
func loadConversation(store storage.ConversationStore, id string) (*storage.Conversation, error) {
	if id == "" {
		return storage.NewConversation(), nil
	}
	convo, err := store.GetConversation(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("conversation %s does not exist", id)
	}
	return convo, err
}

// openStore opens the database configured for the server.
func openStore() (storage.Storage, error) {
	cfg := config.Load()
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return storage.NewSQLiteStorage(cfg.DBPath, cfg.MaxConversations)
}

func cmdList() int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	query := fs.String("q", "", "Filter by title or message text")
	limit := fs.Int("limit", 20, "Maximum conversations to show")
	fs.Parse(os.Args[2:])

	store, err := openStore()
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		return 1
	}
	defer store.Close()

	convos, err := store.ListConversations(storage.ConversationFilter{Query: *query, Limit: *limit})
	if err != nil {
		slog.Error("failed to list conversations", "error", err)
		return 1
	}
	for _, c := range convos {
		fmt.Printf("%s  %s  %s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.Title)
	}
	return 0
}

func cmdModels() int {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	session := sessionFlags(fs)
	fs.Parse(os.Args[2:])

	s := session()
	ids, err := chat.NewClient(s, nil).ListModels(context.Background())
	if err != nil {
		slog.Error("failed to list models", "error", err)
		return 1
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return 0
}

func cmdPing() int {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	session := sessionFlags(fs)
	fs.Parse(os.Args[2:])

	s := session()
	start := time.Now()
	now, err := chat.NewClient(s, nil).Ping(context.Background())
	if err != nil {
		slog.Error("relay unreachable", "url", s.BaseURL, "error", err)
		return 1
	}
	fmt.Printf("ok  relay time %s  round trip %s\n", now.Format(time.RFC3339), time.Since(start).Round(time.Millisecond))
	return 0
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
