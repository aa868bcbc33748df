package satori

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/nonebot/adapter-satori/wire"
)

// Bot is one login served by a Satori connection. It carries the REST
// surface for that login.
type Bot struct {
	client *Client
	info   ClientInfo
	id     string

	mu        sync.RWMutex
	login     wire.Login
	proxyURLs []string
}

func newBot(client *Client, info ClientInfo, login wire.Login, proxyURLs []string) (*Bot, error) {
	id, err := login.Identity()
	if err != nil {
		return nil, err
	}
	return &Bot{
		client:    client,
		info:      info,
		id:        id,
		login:     login,
		proxyURLs: slices.Clone(proxyURLs),
	}, nil
}

// Identity is "platform:self-id", the registry key.
func (b *Bot) Identity() string { return b.id }

// Info is the endpoint this bot was announced on.
func (b *Bot) Info() ClientInfo { return b.info }

// Login returns a snapshot of the current login data.
func (b *Bot) Login() wire.Login {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.login
}

// SelfID is the bot's user id on its platform.
func (b *Bot) SelfID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.login.User == nil {
		return ""
	}
	return b.login.User.ID
}

// Platform is the login's platform, "satori" when unset.
func (b *Bot) Platform() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.login.PlatformName()
}

// ProxyURLs returns the resource prefixes the gateway proxies for this bot.
func (b *Bot) ProxyURLs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.proxyURLs)
}

// HasFeature reports whether the login advertises feature.
func (b *Bot) HasFeature(feature string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.login.HasFeature(feature)
}

func (b *Bot) update(login wire.Login) {
	b.mu.Lock()
	b.login = login
	b.mu.Unlock()
}

func (b *Bot) setProxyURLs(urls []string) {
	b.mu.Lock()
	b.proxyURLs = slices.Clone(urls)
	b.mu.Unlock()
}

func (b *Bot) logger() *slog.Logger {
	return b.client.log.With("bot", b.id)
}

func (b *Bot) LogValue() slog.Value {
	login := b.Login()
	return slog.GroupValue(
		slog.String("id", b.id),
		slog.String("adapter", login.Adapter),
		slog.String("status", login.Status.String()),
	)
}
