package satori

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonebot/adapter-satori/frame"
	"github.com/nonebot/adapter-satori/internal/satoritest"
	"github.com/nonebot/adapter-satori/wire"
)

const waitFor = 3 * time.Second

type recorder struct {
	events       chan *Event
	connected    chan string
	disconnected chan string
}

func newRecorder() *recorder {
	return &recorder{
		events:       make(chan *Event, 16),
		connected:    make(chan string, 16),
		disconnected: make(chan string, 16),
	}
}

func (r *recorder) configure(cfg *Config) {
	cfg.Handler = func(_ context.Context, _ *Bot, ev *Event) { r.events <- ev }
	cfg.OnBotConnect = func(b *Bot) { r.connected <- b.Identity() }
	cfg.OnBotDisconnect = func(b *Bot) { r.disconnected <- b.Identity() }
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting")
		var zero T
		return zero
	}
}

func startClient(t *testing.T, srv *satoritest.Server, rec *recorder, mutate func(*Config)) *Client {
	t.Helper()
	c := newTestClient(t, srv, func(cfg *Config) {
		rec.configure(cfg)
		if mutate != nil {
			mutate(cfg)
		}
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c
}

func messageBody(sn int64, content string) map[string]any {
	return map[string]any{
		"sn":        sn,
		"type":      EventMessageCreated,
		"timestamp": 1700000000000,
		"login":     testLogin("test", "bot"),
		"channel":   wire.Channel{ID: "c1", Type: wire.ChannelText},
		"user":      wire.User{ID: "u1"},
		"message":   wire.MessageObject{ID: "m", Content: content},
	}
}

func TestSessionHandshakeAndEvents(t *testing.T) {
	srv := satoritest.NewServer(t)
	rec := newRecorder()
	c := startClient(t, srv, rec, nil)

	conn := srv.Accept(waitFor)
	assert.Equal(t, "secret-token", conn.Identify.Token)
	assert.Nil(t, conn.Identify.SN)

	require.NoError(t, conn.Send(frame.OpReady, wire.Ready{
		Logins:    []wire.Login{testLogin("test", "bot"), {Adapter: "test", Platform: "test"}},
		ProxyURLs: []string{"upload://"},
	}))
	assert.Equal(t, "test:bot", recv(t, rec.connected))
	assert.Len(t, c.Bots(), 1)
	assert.Equal(t, []string{"upload://"}, c.Bot("test:bot").ProxyURLs())

	require.NoError(t, conn.Send(frame.OpEvent, messageBody(5, `<at id="bot"/> hello`)))
	ev := recv(t, rec.events)
	assert.Equal(t, "hello", ev.Content.String())
	assert.True(t, ev.ToMe)
	sn, ok := c.Sequence(c.cfg.Clients[0])
	require.True(t, ok)
	assert.Equal(t, int64(5), sn)

	require.NoError(t, conn.Send(frame.OpMeta, wire.Meta{ProxyURLs: []string{"cdn://"}}))
	require.Eventually(t, func() bool {
		urls := c.Bot("test:bot").ProxyURLs()
		return len(urls) == 1 && urls[0] == "cdn://"
	}, waitFor, 10*time.Millisecond)
}

func TestSessionHeartbeat(t *testing.T) {
	srv := satoritest.NewServer(t)
	rec := newRecorder()
	startClient(t, srv, rec, func(cfg *Config) { cfg.HeartbeatInterval = 20 * time.Millisecond })

	conn := srv.Accept(waitFor)
	require.NoError(t, conn.Send(frame.OpReady, wire.Ready{Logins: []wire.Login{testLogin("test", "bot")}}))

	for i := 0; i < 2; i++ {
		f, ok := conn.Next(waitFor)
		require.True(t, ok)
		assert.Equal(t, frame.OpPing, f.Op)
	}
	require.NoError(t, conn.Send(frame.OpPong, nil))
}

func TestSessionReconnectResumes(t *testing.T) {
	srv := satoritest.NewServer(t)
	rec := newRecorder()
	c := startClient(t, srv, rec, nil)

	first := srv.Accept(waitFor)
	require.NoError(t, first.Send(frame.OpReady, wire.Ready{Logins: []wire.Login{testLogin("test", "bot")}}))
	recv(t, rec.connected)

	require.NoError(t, first.Send(frame.OpEvent, messageBody(42, "hi")))
	recv(t, rec.events)

	// An undecodable payload drops the connection.
	require.NoError(t, first.SendRaw([]byte("not json")))
	assert.Equal(t, "test:bot", recv(t, rec.disconnected))
	assert.Empty(t, c.Bots())

	second := srv.Accept(waitFor)
	require.NotNil(t, second.Identify.SN)
	assert.Equal(t, int64(42), *second.Identify.SN)

	require.NoError(t, second.Send(frame.OpReady, wire.Ready{Logins: []wire.Login{testLogin("test", "bot")}}))
	assert.Equal(t, "test:bot", recv(t, rec.connected))

	// Replays of events delivered before the reconnect are dropped.
	require.NoError(t, second.Send(frame.OpEvent, messageBody(42, "hi")))
	require.NoError(t, second.Send(frame.OpEvent, messageBody(43, "new")))
	assert.Equal(t, "new", recv(t, rec.events).PlainText())
	select {
	case ev := <-rec.events:
		t.Fatalf("unexpected event %q", ev.PlainText())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionRejectsNonReady(t *testing.T) {
	srv := satoritest.NewServer(t)
	rec := newRecorder()
	startClient(t, srv, rec, nil)

	first := srv.Accept(waitFor)
	require.NoError(t, first.Send(frame.OpPong, nil))
	assert.True(t, first.Closed(waitFor))

	second := srv.Accept(waitFor)
	assert.Nil(t, second.Identify.SN)
}

func TestSessionDropsDuplicates(t *testing.T) {
	srv := satoritest.NewServer(t)
	rec := newRecorder()
	startClient(t, srv, rec, nil)

	conn := srv.Accept(waitFor)
	require.NoError(t, conn.Send(frame.OpReady, wire.Ready{Logins: []wire.Login{testLogin("test", "bot")}}))
	recv(t, rec.connected)

	require.NoError(t, conn.Send(frame.OpEvent, messageBody(1, "a")))
	require.NoError(t, conn.Send(frame.OpEvent, messageBody(1, "a")))
	require.NoError(t, conn.Send(frame.OpEvent, messageBody(2, "b")))

	got := []string{recv(t, rec.events).PlainText(), recv(t, rec.events).PlainText()}
	assert.ElementsMatch(t, []string{"a", "b"}, got)
	select {
	case ev := <-rec.events:
		t.Fatalf("unexpected event %q", ev.PlainText())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionLoginEvents(t *testing.T) {
	srv := satoritest.NewServer(t)
	rec := newRecorder()
	c := startClient(t, srv, rec, nil)

	conn := srv.Accept(waitFor)
	require.NoError(t, conn.Send(frame.OpReady, wire.Ready{}))

	added := testLogin("test", "late")
	require.NoError(t, conn.Send(frame.OpEvent, map[string]any{"sn": 1, "type": EventLoginAdded, "login": added}))
	assert.Equal(t, "test:late", recv(t, rec.connected))
	assert.Equal(t, EventLoginAdded, recv(t, rec.events).Type)

	// Unknown and offline: ignored.
	offline := testLogin("test", "ghost")
	offline.Status = wire.StatusOffline
	require.NoError(t, conn.Send(frame.OpEvent, map[string]any{"sn": 2, "type": EventLoginUpdated, "login": offline}))

	// Unknown and online: registered.
	online := testLogin("test", "fresh")
	require.NoError(t, conn.Send(frame.OpEvent, map[string]any{"sn": 3, "type": EventLoginUpdated, "login": online}))
	assert.Equal(t, "test:fresh", recv(t, rec.connected))
	assert.Equal(t, EventLoginUpdated, recv(t, rec.events).Type)
	assert.Nil(t, c.Bot("test:ghost"))

	require.NoError(t, conn.Send(frame.OpEvent, map[string]any{"sn": 4, "type": EventLoginRemoved, "login": added}))
	assert.Equal(t, "test:late", recv(t, rec.disconnected))
	assert.Equal(t, EventLoginRemoved, recv(t, rec.events).Type)
	assert.Nil(t, c.Bot("test:late"))

	// Events for bots that are not registered are dropped.
	require.NoError(t, conn.Send(frame.OpEvent, map[string]any{
		"sn": 5, "type": EventGuildAdded, "login": testLogin("test", "nobody"), "guild": wire.Guild{ID: "g"},
	}))
	require.NoError(t, conn.Send(frame.OpEvent, map[string]any{
		"sn": 6, "type": EventGuildAdded, "login": online, "guild": wire.Guild{ID: "g"},
	}))
	ev := recv(t, rec.events)
	assert.Equal(t, EventGuildAdded, ev.Type)
	assert.Equal(t, "fresh", ev.Login.User.ID)
}

func TestShutdownWaitsForHandlers(t *testing.T) {
	srv := satoritest.NewServer(t)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.ShutdownTimeout = 100 * time.Millisecond
		cfg.Handler = func(ctx context.Context, _ *Bot, _ *Event) {
			started <- struct{}{}
			<-release
		}
	})
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	conn := srv.Accept(waitFor)
	require.NoError(t, conn.Send(frame.OpReady, wire.Ready{Logins: []wire.Login{testLogin("test", "bot")}}))
	require.NoError(t, conn.Send(frame.OpEvent, messageBody(1, "slow")))
	recv(t, started)

	err := c.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Empty(t, c.Bots())
	_, ok := c.Sequence(c.cfg.Clients[0])
	assert.False(t, ok)
	close(release)
}

func TestSessionSkipsUnrecognizedPayloads(t *testing.T) {
	srv := satoritest.NewServer(t)
	rec := newRecorder()
	startClient(t, srv, rec, nil)

	conn := srv.Accept(waitFor)
	require.NoError(t, conn.Send(frame.OpReady, wire.Ready{Logins: []wire.Login{testLogin("test", "bot")}}))
	recv(t, rec.connected)

	require.NoError(t, conn.SendRaw([]byte(`{"op":0,"body":[1]}`)))
	require.NoError(t, conn.SendRaw([]byte(`{"body":{}}`)))
	require.NoError(t, conn.SendRaw([]byte(`{"op":9,"body":{}}`)))
	require.NoError(t, conn.Send(frame.OpEvent, messageBody(1, "still here")))

	assert.Equal(t, "still here", recv(t, rec.events).PlainText())
	select {
	case id := <-rec.disconnected:
		t.Fatalf("unexpected disconnect of %s", id)
	default:
	}
}

func TestShutdownStopsDispatch(t *testing.T) {
	srv := satoritest.NewServer(t)
	var stopped atomic.Bool
	var late atomic.Int32
	first := make(chan struct{}, 1)
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.Handler = func(ctx context.Context, _ *Bot, _ *Event) {
			if stopped.Load() {
				late.Add(1)
			}
			select {
			case first <- struct{}{}:
			default:
			}
		}
	})
	require.NoError(t, c.Start(context.Background()))

	conn := srv.Accept(waitFor)
	require.NoError(t, conn.Send(frame.OpReady, wire.Ready{Logins: []wire.Login{testLogin("test", "bot")}}))
	go func() {
		for sn := int64(1); sn <= 2000; sn++ {
			if conn.Send(frame.OpEvent, messageBody(sn, "burst")) != nil {
				return
			}
		}
	}()
	recv(t, first)

	require.NoError(t, c.Shutdown(context.Background()))
	stopped.Store(true)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, late.Load())
	assert.Zero(t, c.tasks.Len())
}

func TestWriteLoopSurvivesFailedWrites(t *testing.T) {
	client, server := net.Pipe()
	server.Close()
	client.Close()

	s := &session{}
	out := make(chan []byte)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.writeLoop(ctx, client, out, quietLogger())
		close(done)
	}()

	for range 3 {
		select {
		case out <- []byte(`{"op":1}`):
		case <-time.After(waitFor):
			t.Fatal("write loop stopped after a failed write")
		}
	}
	cancel()
	recv(t, done)
}
