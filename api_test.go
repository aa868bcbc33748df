package satori

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonebot/adapter-satori/internal/satoritest"
	"github.com/nonebot/adapter-satori/message"
	"github.com/nonebot/adapter-satori/wire"
)

func TestSendMessage(t *testing.T) {
	srv := satoritest.NewServer(t)
	srv.Handle("message.create", func(call satoritest.APICall) (int, any) {
		return http.StatusOK, []wire.MessageObject{{ID: "new", Content: "x"}}
	})
	c := newTestClient(t, srv, nil)
	bot := testBot(t, c, c.cfg.Clients[0], "bot")

	out, err := bot.SendMessage(context.Background(), "c1", message.New(message.Bold("hi"), message.Image("u")))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].ID)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer secret-token", calls[0].Header.Get("Authorization"))
	assert.Equal(t, "test", calls[0].Header.Get("Satori-Platform"))
	assert.Equal(t, "bot", calls[0].Header.Get("Satori-User-ID"))
	assert.Equal(t, "application/json", calls[0].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"channel_id":"c1","content":"<b>hi</b><img src=\"u\"/>"}`, string(calls[0].Body))
}

func TestSendPrivateMessage(t *testing.T) {
	srv := satoritest.NewServer(t)
	srv.Handle("user.channel.create", func(call satoritest.APICall) (int, any) {
		return http.StatusOK, wire.Channel{ID: "dm-1", Type: wire.ChannelDirect}
	})
	srv.Handle("message.create", func(call satoritest.APICall) (int, any) {
		return http.StatusOK, []wire.MessageObject{{ID: "m"}}
	})
	c := newTestClient(t, srv, nil)
	bot := testBot(t, c, c.cfg.Clients[0], "bot")

	_, err := bot.SendPrivateMessage(context.Background(), "u1", message.New(message.NewText("hey")))
	require.NoError(t, err)
	calls := srv.Calls()
	require.Len(t, calls, 2)
	assert.JSONEq(t, `{"user_id":"u1"}`, string(calls[0].Body))
	var body map[string]string
	require.NoError(t, json.Unmarshal(calls[1].Body, &body))
	assert.Equal(t, "dm-1", body["channel_id"])
}

func TestReplyQuotesMessage(t *testing.T) {
	srv := satoritest.NewServer(t)
	srv.Handle("message.create", func(call satoritest.APICall) (int, any) {
		return http.StatusOK, []wire.MessageObject{}
	})
	c := newTestClient(t, srv, nil)
	bot := testBot(t, c, c.cfg.Clients[0], "bot")

	ev := messageEvent(message.New(message.NewText("ping")))
	_, err := bot.Reply(context.Background(), ev, message.New(message.NewText("pong")), true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel_id":"c1","content":"<quote id=\"m1\"/>pong"}`, string(srv.Calls()[0].Body))

	_, err = bot.Reply(context.Background(), &Event{}, nil, false)
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestActionFailedMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusMethodNotAllowed, ErrMethodNotAllowed},
		{http.StatusInternalServerError, ErrAPINotImplemented},
		{http.StatusBadGateway, nil},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := satoritest.NewServer(t)
			srv.Handle("guild.get", func(satoritest.APICall) (int, any) {
				return tt.status, map[string]string{"error": "nope"}
			})
			c := newTestClient(t, srv, nil)
			bot := testBot(t, c, c.cfg.Clients[0], "bot")

			_, err := bot.GuildGet(context.Background(), "g")
			require.Error(t, err)
			af, ok := AsActionFailed(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, af.StatusCode)
			assert.Equal(t, "guild.get", af.Method)
			assert.Contains(t, string(af.Body), "nope")
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				for _, sentinel := range []error{ErrBadRequest, ErrNotFound, ErrAPINotImplemented} {
					assert.False(t, errors.Is(err, sentinel))
				}
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	c := newTestClient(t, nil, nil)
	// Nothing listens on port 1.
	bot := testBot(t, c, ClientInfo{Host: "127.0.0.1", Port: 1}, "bot")
	_, err := bot.UserGet(context.Background(), "u")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestMessageList(t *testing.T) {
	srv := satoritest.NewServer(t)
	srv.Handle("message.list", func(call satoritest.APICall) (int, any) {
		return http.StatusOK, MessagePage{Data: []wire.MessageObject{{ID: "a"}, {ID: "b"}}, Next: "cursor"}
	})
	c := newTestClient(t, srv, nil)
	bot := testBot(t, c, c.cfg.Clients[0], "bot")

	page, err := bot.MessageList(context.Background(), "c1", MessageListOptions{Direction: DirectionBefore, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, "cursor", page.Next)
	assert.JSONEq(t, `{"channel_id":"c1","direction":"before","limit":2}`, string(srv.Calls()[0].Body))
}

func TestLoginGetRefreshesBot(t *testing.T) {
	srv := satoritest.NewServer(t)
	srv.Handle("login.get", func(satoritest.APICall) (int, any) {
		l := testLogin("test", "bot")
		l.Features = []string{"message.delete"}
		return http.StatusOK, l
	})
	c := newTestClient(t, srv, nil)
	bot := testBot(t, c, c.cfg.Clients[0], "bot")
	assert.False(t, bot.HasFeature("message.delete"))

	_, err := bot.LoginGet(context.Background())
	require.NoError(t, err)
	assert.True(t, bot.HasFeature("message.delete"))
}

func TestFetchResource(t *testing.T) {
	srv := satoritest.NewServer(t)
	c := newTestClient(t, srv, nil)
	bot := testBot(t, c, c.cfg.Clients[0], "bot")
	bot.setProxyURLs([]string{"upload://"})

	assert.Equal(t, "https://elsewhere/x.png", bot.ProxyURL("https://elsewhere/x.png"))
	assert.Equal(t, c.cfg.Clients[0].APIBase()+"/proxy/upload://a/b.png", bot.ProxyURL("upload://a/b.png"))

	data, err := bot.FetchResource(context.Background(), "internal:test/1")
	require.NoError(t, err)
	assert.Equal(t, "proxied:internal:test/1", string(data))

	data, err = bot.FetchResource(context.Background(), srv.URL+"/v1/proxy/direct")
	require.NoError(t, err)
	assert.Equal(t, "proxied:direct", string(data))
}
