package satori

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nonebot/adapter-satori/internal/satoritest"
	"github.com/nonebot/adapter-satori/wire"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient returns a client pointed at srv with short timings.
// srv may be nil for tests that never dial.
func newTestClient(t *testing.T, srv *satoritest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Logger:            quietLogger(),
		HeartbeatInterval: time.Hour,
		ReconnectDelay:    20 * time.Millisecond,
		ConnectTimeout:    2 * time.Second,
		ShutdownTimeout:   2 * time.Second,
	}
	if srv != nil {
		host, port := srv.HostPort()
		cfg.Clients = []ClientInfo{{Host: host, Port: port, Token: "secret-token"}}
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func testLogin(platform, id string) wire.Login {
	return wire.Login{
		SN:       1,
		Status:   wire.StatusOnline,
		Adapter:  "test",
		Platform: platform,
		User:     &wire.User{ID: id},
	}
}

func testBot(t *testing.T, c *Client, info ClientInfo, selfID string) *Bot {
	t.Helper()
	bot, err := newBot(c, info, testLogin("test", selfID), nil)
	require.NoError(t, err)
	return bot
}
