package satori

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path"
	"strconv"
)

// ClientInfo describes one Satori server endpoint.
type ClientInfo struct {
	Host  string `json:"host" yaml:"host"`
	Port  int    `json:"port" yaml:"port"`
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// Identity keys all per-endpoint state: "host:port#token".
func (i ClientInfo) Identity() string {
	return fmt.Sprintf("%s:%d#%s", i.Host, i.Port, i.Token)
}

// Endpoint is host:port plus path, safe to log.
func (i ClientInfo) Endpoint() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port)) + path.Join("/", i.Path)
}

// APIBase is the REST root, e.g. "http://localhost:5140/satori/v1".
func (i ClientInfo) APIBase() string { return i.base("http") }

// WSBase is the WebSocket root, e.g. "ws://localhost:5140/satori/v1".
func (i ClientInfo) WSBase() string { return i.base("ws") }

func (i ClientInfo) base(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(i.Host, strconv.Itoa(i.Port)),
		Path:   path.Join("/", i.Path, "v1"),
	}
	return u.String()
}

// Validate reports configuration mistakes.
func (i ClientInfo) Validate() error {
	if i.Host == "" {
		return fmt.Errorf("host is empty")
	}
	if i.Port <= 0 || i.Port > 65535 {
		return fmt.Errorf("port %d out of range", i.Port)
	}
	return nil
}

// LogValue keeps the token out of logs.
func (i ClientInfo) LogValue() slog.Value {
	token := ""
	if i.Token != "" {
		token = redacted
	}
	return slog.GroupValue(
		slog.String("host", i.Host),
		slog.Int("port", i.Port),
		slog.String("path", i.Path),
		slog.String("token", token),
	)
}
