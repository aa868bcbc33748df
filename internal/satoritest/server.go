// Package satoritest runs an in-process Satori gateway for tests.
package satoritest

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/nonebot/adapter-satori/frame"
	"github.com/nonebot/adapter-satori/wire"
)

// APIHandler answers one REST method. It returns the status code and a
// value encoded as the JSON response body; a nil value sends no body.
type APIHandler func(call APICall) (int, any)

// APICall is a recorded REST request.
type APICall struct {
	Method string
	Header http.Header
	Body   json.RawMessage
}

// Server is a fake gateway serving /v1/events and /v1/{method}.
type Server struct {
	*httptest.Server
	t testing.TB

	conns chan *Conn

	mu    sync.Mutex
	api   map[string]APIHandler
	calls []APICall
}

// NewServer starts a server closed at test cleanup.
func NewServer(t testing.TB) *Server {
	s := &Server{
		t:     t,
		conns: make(chan *Conn, 8),
		api:   make(map[string]APIHandler),
	}
	r := chi.NewRouter()
	r.Get("/v1/events", s.serveEvents)
	r.Get("/v1/proxy/*", s.serveProxy)
	r.Post("/v1/{method}", s.serveAPI)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// HostPort is the address the server listens on.
func (s *Server) HostPort() (string, int) {
	u, err := url.Parse(s.URL)
	if err != nil {
		s.t.Fatalf("parse server url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		s.t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Handle registers the answer for a REST method such as "message.get".
func (s *Server) Handle(method string, h APIHandler) {
	s.mu.Lock()
	s.api[method] = h
	s.mu.Unlock()
}

// Calls returns the REST requests received so far.
func (s *Server) Calls() []APICall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]APICall(nil), s.calls...)
}

func (s *Server) serveAPI(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	call := APICall{Method: chi.URLParam(r, "method"), Header: r.Header.Clone(), Body: body}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	h := s.api[call.Method]
	s.mu.Unlock()

	if h == nil {
		http.Error(w, "unknown method "+call.Method, http.StatusNotFound)
		return
	}
	status, resp := h(call)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if resp != nil {
		json.NewEncoder(w).Encode(resp)
	}
}

// serveProxy echoes the proxied URL.
func (s *Server) serveProxy(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "proxied:"+chi.URLParam(r, "*"))
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	raw, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	if rw != nil && rw.Reader.Buffered() > 0 {
		raw = &bufferedConn{Conn: raw, r: rw.Reader}
	}
	c := &Conn{conn: raw, frames: make(chan frame.Frame, 64)}

	data, err := wsutil.ReadClientText(raw)
	if err != nil {
		raw.Close()
		return
	}
	f, err := frame.Decode(data)
	if err != nil || f.Op != frame.OpIdentify {
		s.t.Errorf("expected IDENTIFY, got %q (%v)", data, err)
		raw.Close()
		return
	}
	if err := f.Unmarshal(&c.Identify); err != nil {
		s.t.Errorf("decode identify: %v", err)
	}
	go c.readLoop()
	s.conns <- c
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// Accept waits for the next identified connection.
func (s *Server) Accept(timeout time.Duration) *Conn {
	s.t.Helper()
	select {
	case c := <-s.conns:
		s.t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(timeout):
		s.t.Fatalf("no connection within %s", timeout)
		return nil
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	Identify wire.Identify

	conn   net.Conn
	wmu    sync.Mutex
	frames chan frame.Frame
}

func (c *Conn) readLoop() {
	defer close(c.frames)
	for {
		data, err := wsutil.ReadClientText(c.conn)
		if err != nil {
			return
		}
		f, err := frame.Decode(data)
		if err != nil {
			continue
		}
		select {
		case c.frames <- f:
		default:
		}
	}
}

// Send writes an envelope.
func (c *Conn) Send(op frame.Opcode, body any) error {
	data, err := frame.Encode(op, body)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes a text message verbatim.
func (c *Conn) SendRaw(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteServerText(c.conn, data)
}

// Next returns the next frame from the client, or false when the
// connection closed or timeout elapsed.
func (c *Conn) Next(timeout time.Duration) (frame.Frame, bool) {
	select {
	case f, ok := <-c.frames:
		return f, ok
	case <-time.After(timeout):
		return frame.Frame{}, false
	}
}

// Closed waits until the client side goes away.
func (c *Conn) Closed(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// Close drops the connection.
func (c *Conn) Close() error { return c.conn.Close() }
