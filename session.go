package satori

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/nonebot/adapter-satori/frame"
	"github.com/nonebot/adapter-satori/wire"
)

// session keeps one endpoint connected: dial, identify, serve events,
// then reconnect after a delay until its context ends.
type session struct {
	client *Client
	info   ClientInfo
	conn   string
	log    *slog.Logger
	dedup  *frame.DedupWindow
}

func newSession(c *Client, info ClientInfo) *session {
	return &session{
		client: c,
		info:   info,
		conn:   info.Identity(),
		log:    c.log.With("endpoint", info.Endpoint()),
		dedup:  frame.NewDedupWindow(),
	}
}

// bufferedConn reads through the handshake reader, which may hold bytes
// received together with the upgrade response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (s *session) run(ctx context.Context) {
	delay := s.client.cfg.ReconnectDelay
	for {
		err := s.serve(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Error("connection closed, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// serve runs one connection to completion. Bots announced on it are
// disconnected when it returns.
func (s *session) serve(ctx context.Context) error {
	url := s.info.WSBase() + "/events"
	log := s.log.With("attempt", uuid.NewString())

	dialer := ws.Dialer{Timeout: s.client.cfg.ConnectTimeout}
	dialCtx, cancelDial := context.WithTimeout(ctx, s.client.cfg.ConnectTimeout)
	conn, br, _, err := dialer.Dial(dialCtx, url)
	cancelDial()
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	if br != nil {
		conn = &bufferedConn{Conn: conn, r: br}
		defer ws.PutReader(br)
	}
	log.Debug("websocket connected", "url", url)

	connCtx, cancel := context.WithCancel(ctx)
	stopClose := context.AfterFunc(connCtx, func() { conn.Close() })
	defer func() {
		cancel()
		stopClose()
		conn.Close()
		if removed := s.client.registry.Clear(s.conn); len(removed) > 0 {
			log.Info("bots disconnected", "count", len(removed))
		}
	}()

	if err := s.authenticate(conn, log); err != nil {
		return err
	}

	out := make(chan []byte, 64)
	go s.writeLoop(connCtx, conn, out, log)
	go s.heartbeat(connCtx, out, log)

	return s.readLoop(ctx, conn, log)
}

func (s *session) authenticate(conn net.Conn, log *slog.Logger) error {
	identify := wire.Identify{Token: s.info.Token}
	if sn, ok := s.client.Sequence(s.info); ok {
		identify.SN = &sn
	}
	data, err := frame.Encode(frame.OpIdentify, identify)
	if err != nil {
		return err
	}
	if err := wsutil.WriteClientText(conn, data); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(s.client.cfg.ConnectTimeout))
	f, err := s.receive(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		return fmt.Errorf("await ready: %w", err)
	}
	if f.Op != frame.OpReady {
		return fmt.Errorf("%w: got %s while waiting for READY", ErrUnexpectedPayload, f.Op)
	}

	var ready wire.Ready
	if err := f.Unmarshal(&ready); err != nil {
		return fmt.Errorf("decode ready: %w", err)
	}
	if identify.SN == nil {
		s.dedup.Reset()
	}
	s.client.setProxyURLs(s.conn, ready.ProxyURLs)

	for _, login := range ready.Logins {
		if login.User == nil {
			log.Warn("login without user ignored", "adapter", login.Adapter, "platform", login.Platform)
			continue
		}
		bot, err := newBot(s.client, s.info, login, ready.ProxyURLs)
		if err != nil {
			log.Warn("login ignored", "error", err)
			continue
		}
		s.client.registry.Register(s.conn, bot)
	}
	if len(s.client.registry.Logins(s.conn)) == 0 {
		log.Warn("no bots connected on this endpoint")
	}
	s.client.registry.SetProxyURLs(s.conn, ready.ProxyURLs)
	log.Info("identified", "logins", len(ready.Logins))
	return nil
}

// receive reads and decodes one frame, recording the sequence number of
// event frames.
func (s *session) receive(conn net.Conn) (frame.Frame, error) {
	data, _, err := wsutil.ReadServerData(conn)
	if err != nil {
		return frame.Frame{}, err
	}
	f, err := frame.Decode(data)
	if err != nil {
		return frame.Frame{}, err
	}
	if f.Op == frame.OpEvent {
		sn, ok, err := f.Sequence()
		if err != nil {
			return frame.Frame{}, err
		}
		if ok {
			s.client.setSequence(s.conn, sn)
		}
	}
	return f, nil
}

func (s *session) readLoop(ctx context.Context, conn net.Conn, log *slog.Logger) error {
	for {
		f, err := s.receive(conn)
		if err != nil {
			if errors.Is(err, frame.ErrBadBody) || errors.Is(err, frame.ErrMissingOpcode) {
				log.Warn("unrecognized payload skipped", "error", err)
				continue
			}
			return err
		}

		switch f.Op {
		case frame.OpEvent:
			s.handleEvent(ctx, f, log)
		case frame.OpPong:
			log.Debug("pong")
		case frame.OpMeta:
			var meta wire.Meta
			if err := f.Unmarshal(&meta); err != nil {
				log.Warn("bad meta payload", "error", err)
				continue
			}
			s.client.setProxyURLs(s.conn, meta.ProxyURLs)
			s.client.registry.SetProxyURLs(s.conn, meta.ProxyURLs)
		default:
			log.Warn("unexpected payload", "op", f.Op.String())
		}
	}
}

// writeLoop serializes writes to conn. Write failures are logged; a dead
// socket is detected by the read loop.
func (s *session) writeLoop(ctx context.Context, conn net.Conn, out <-chan []byte, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			if err := wsutil.WriteClientText(conn, data); err != nil {
				log.Warn("write failed", "error", err)
			}
		}
	}
}

func (s *session) heartbeat(ctx context.Context, out chan<- []byte, log *slog.Logger) {
	ping, err := frame.Encode(frame.OpPing, nil)
	if err != nil {
		log.Error("encode ping", "error", err)
		return
	}
	ticker := time.NewTicker(s.client.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case out <- ping:
			log.Debug("heartbeat")
		default:
			log.Warn("heartbeat skipped, write queue full")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *session) handleEvent(ctx context.Context, f frame.Frame, log *slog.Logger) {
	ev, err := DecodeEvent(f.Body)
	if err != nil {
		log.Warn("failed to decode event", "error", err)
		return
	}
	if ev.Category == CategoryUnknown {
		log.Warn("unknown event type", "type", ev.Type)
	}
	if ev.SN != 0 && s.dedup.IsDuplicate(ev.SN) {
		log.Debug("duplicate event dropped", "sn", ev.SN)
		return
	}

	bot := s.applyLogin(ev, log)
	if bot == nil {
		return
	}
	s.client.dispatch(ctx, bot, ev)
}

// applyLogin keeps the registry in step with login events and resolves
// the bot an event belongs to. It returns nil when the event should be
// dropped.
func (s *session) applyLogin(ev *Event, log *slog.Logger) *Bot {
	reg := s.client.registry
	switch ev.Type {
	case EventLoginAdded:
		if ev.Login.User == nil {
			log.Warn("login-added without user", "adapter", ev.Login.Adapter)
			return nil
		}
		bot, err := newBot(s.client, s.info, ev.Login, s.client.ProxyURLs(s.info))
		if err != nil {
			log.Warn("login-added ignored", "error", err)
			return nil
		}
		bot, _ = reg.Register(s.conn, bot)
		return bot

	case EventLoginRemoved:
		id, err := ev.Login.Identity()
		if err != nil {
			log.Warn("login-removed without user", "adapter", ev.Login.Adapter)
			return nil
		}
		bot, ok := reg.Unregister(s.conn, id)
		if !ok {
			log.Warn("login-removed for unknown bot", "bot", id)
			return nil
		}
		return bot

	case EventLoginUpdated:
		id, err := ev.Login.Identity()
		if err != nil {
			log.Warn("login-updated without user", "adapter", ev.Login.Adapter)
			return nil
		}
		if reg.Update(ev.Login) {
			return reg.Bot(id)
		}
		if ev.Login.Status != wire.StatusOnline {
			log.Warn("login-updated for unknown bot", "bot", id, "status", ev.Login.Status.String())
			return nil
		}
		bot, err := newBot(s.client, s.info, ev.Login, s.client.ProxyURLs(s.info))
		if err != nil {
			return nil
		}
		bot, _ = reg.Register(s.conn, bot)
		return bot
	}

	id, err := ev.Login.Identity()
	if err != nil {
		log.Warn("event without login dropped", "type", ev.Type)
		return nil
	}
	bot := reg.Bot(id)
	if bot == nil {
		log.Warn("event for unknown bot dropped", "type", ev.Type, "bot", id)
	}
	return bot
}
