// Package satori is a client for Satori chat gateways. It keeps one
// WebSocket session per configured endpoint, tracks the bots each
// endpoint announces, decodes events and hands them to a Handler with a
// Bot that can call the gateway's REST API.
package satori

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// Defaults applied to zero Config durations.
const (
	DefaultHeartbeatInterval = 9 * time.Second
	DefaultReconnectDelay    = 3 * time.Second
	DefaultConnectTimeout    = 60 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// Handler receives every event that belongs to a known bot. Message
// events arrive with addressing already stripped.
type Handler func(ctx context.Context, bot *Bot, ev *Event)

// Config holds client parameters.
type Config struct {
	Clients   []ClientInfo
	Nicknames []string

	Handler         Handler
	OnBotConnect    func(*Bot)
	OnBotDisconnect func(*Bot)

	// Logger defaults to slog.Default(). Tokens of all clients are
	// masked in its output.
	Logger *slog.Logger
	// HTTPClient is used for REST calls. The default negotiates gzip.
	HTTPClient *http.Client

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Client runs sessions against one or more Satori endpoints.
type Client struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	registry  *Registry
	tasks     *taskSet
	nicknames *regexp.Regexp

	seqMu     sync.Mutex
	sequences map[string]int64

	proxyMu sync.RWMutex
	proxies map[string][]string

	mu       sync.Mutex
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

// New validates cfg and returns a client that is not yet connected.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	seen := make(map[string]bool, len(cfg.Clients))
	tokens := make([]string, 0, len(cfg.Clients))
	for i, info := range cfg.Clients {
		if err := info.Validate(); err != nil {
			return nil, fmt.Errorf("client %d: %w", i, err)
		}
		if seen[info.Identity()] {
			return nil, fmt.Errorf("client %d: duplicate endpoint %s", i, info.Endpoint())
		}
		seen[info.Identity()] = true
		tokens = append(tokens, info.Token)
	}

	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	log := slog.New(NewRedactingHandler(base.Handler(), tokens...)).With("component", "satori")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: gzhttp.Transport(http.DefaultTransport),
		}
	}

	c := &Client{
		cfg:       cfg,
		log:       log,
		http:      httpClient,
		tasks:     newTaskSet(log),
		nicknames: nicknamePattern(cfg.Nicknames),
		sequences: make(map[string]int64),
		proxies:   make(map[string][]string),
	}
	c.registry = NewRegistry(c.botConnected, c.botDisconnected)
	return c, nil
}

func (c *Client) botConnected(bot *Bot) {
	c.log.Info("bot connected", "bot", bot)
	if c.cfg.OnBotConnect != nil {
		c.cfg.OnBotConnect(bot)
	}
}

func (c *Client) botDisconnected(bot *Bot) {
	c.log.Info("bot disconnected", "bot", bot)
	if c.cfg.OnBotDisconnect != nil {
		c.cfg.OnBotDisconnect(bot)
	}
}

// Start launches one session per configured endpoint and returns
// immediately. Sessions stop when ctx ends or Shutdown is called.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.tasks.Open()
	for _, info := range c.cfg.Clients {
		s := newSession(c, info)
		c.sessions.Add(1)
		go func() {
			defer c.sessions.Done()
			s.run(ctx)
		}()
	}
	c.log.Info("client started", "endpoints", len(c.cfg.Clients))
	return nil
}

// Run starts the client, blocks until ctx ends, then shuts down.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ShutdownTimeout)
	defer cancel()
	return c.Shutdown(shutdownCtx)
}

// Shutdown stops all sessions, waits up to the shutdown timeout for
// in-flight handlers, and clears all state. Handlers still running when
// the wait ends are reported through ErrShutdownTimeout.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	timeout := c.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	start := time.Now()
	deadline := time.NewTimer(max(timeout, 0))
	defer deadline.Stop()

	var pending []string
	done := make(chan struct{})
	go func() {
		c.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-deadline.C:
		pending = append(pending, "session")
	}

	// No handler starts past this point, even from a session that
	// outlived the deadline.
	c.tasks.Close()
	if len(pending) == 0 {
		pending = c.tasks.Wait(time.Until(start.Add(timeout)))
	} else {
		pending = append(pending, c.tasks.Wait(0)...)
	}

	c.registry.Reset()
	c.seqMu.Lock()
	clear(c.sequences)
	c.seqMu.Unlock()
	c.proxyMu.Lock()
	clear(c.proxies)
	c.proxyMu.Unlock()

	if len(pending) > 0 {
		c.log.Warn("shutdown timed out", "pending", pending)
		return fmt.Errorf("%w: %s", ErrShutdownTimeout, strings.Join(pending, ", "))
	}
	c.log.Info("client stopped")
	return nil
}

// dispatch runs preprocessing and the handler in a tracked task. Events
// arriving after ctx ends or after shutdown began are dropped.
func (c *Client) dispatch(ctx context.Context, bot *Bot, ev *Event) {
	if ctx.Err() != nil {
		return
	}
	started := c.tasks.Go("handle "+ev.Type, func() {
		if ev.Category == CategoryMessage {
			bot.preprocess(ctx, ev)
		}
		c.log.Debug("event", "bot", bot.Identity(), "event", ev)
		if c.cfg.Handler != nil {
			c.cfg.Handler(ctx, bot, ev)
		}
	})
	if !started {
		c.log.Debug("event dropped during shutdown", "type", ev.Type)
	}
}

// Bots returns every connected bot.
func (c *Client) Bots() []*Bot { return c.registry.Bots() }

// Bot returns the bot with identity "platform:self-id", or nil.
func (c *Client) Bot(identity string) *Bot { return c.registry.Bot(identity) }

// Registry exposes the login registry.
func (c *Client) Registry() *Registry { return c.registry }

// Sequence returns the last event sequence number seen from info.
func (c *Client) Sequence(info ClientInfo) (int64, bool) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	sn, ok := c.sequences[info.Identity()]
	return sn, ok
}

func (c *Client) setSequence(conn string, sn int64) {
	c.seqMu.Lock()
	c.sequences[conn] = sn
	c.seqMu.Unlock()
}

// ProxyURLs returns the proxy prefixes last announced by info.
func (c *Client) ProxyURLs(info ClientInfo) []string {
	c.proxyMu.RLock()
	defer c.proxyMu.RUnlock()
	return slices.Clone(c.proxies[info.Identity()])
}

func (c *Client) setProxyURLs(conn string, urls []string) {
	c.proxyMu.Lock()
	c.proxies[conn] = slices.Clone(urls)
	c.proxyMu.Unlock()
}
