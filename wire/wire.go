// Package wire defines the JSON payload types of the Satori protocol, shared
// by the event stream and the REST API.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrLoginIncomplete is returned by Login.Identity when the login has no
// user yet.
var ErrLoginIncomplete = errors.New("wire: login has no user")

// Time is a timestamp carried as milliseconds since the Unix epoch.
type Time struct {
	time.Time
}

// NewTime wraps t.
func NewTime(t time.Time) Time { return Time{Time: t} }

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("wire: invalid timestamp %s", data)
		}
		ms = int64(f)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

// ChannelType distinguishes text, direct, category and voice channels.
type ChannelType int

const (
	ChannelText     ChannelType = 0
	ChannelDirect   ChannelType = 1
	ChannelCategory ChannelType = 2
	ChannelVoice    ChannelType = 3
)

// Channel is a place messages are sent to.
type Channel struct {
	ID       string      `json:"id"`
	Type     ChannelType `json:"type"`
	Name     string      `json:"name,omitempty"`
	ParentID string      `json:"parent_id,omitempty"`
}

// Guild is a group of channels.
type Guild struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// User is an account on the platform.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Nick   string `json:"nick,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	IsBot  bool   `json:"is_bot,omitempty"`
}

// Member is a user's membership in a guild.
type Member struct {
	User     *User  `json:"user,omitempty"`
	Nick     string `json:"nick,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	JoinedAt *Time  `json:"joined_at,omitempty"`
}

// Role is a guild role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// LoginStatus is the connection state of a login.
type LoginStatus int

const (
	StatusOffline    LoginStatus = 0
	StatusOnline     LoginStatus = 1
	StatusConnect    LoginStatus = 2
	StatusDisconnect LoginStatus = 3
	StatusReconnect  LoginStatus = 4
)

var statusNames = [...]string{"offline", "online", "connect", "disconnect", "reconnect"}

func (s LoginStatus) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Login is one bot account served by the gateway.
type Login struct {
	SN       int64       `json:"sn"`
	Status   LoginStatus `json:"status"`
	Adapter  string      `json:"adapter"`
	Platform string      `json:"platform,omitempty"`
	User     *User       `json:"user,omitempty"`
	Features []string    `json:"features,omitempty"`
}

// PlatformName returns the platform, defaulting to "satori".
func (l Login) PlatformName() string {
	if l.Platform == "" {
		return "satori"
	}
	return l.Platform
}

// Identity is the registry key of a login: "platform:user-id".
func (l Login) Identity() (string, error) {
	if l.User == nil {
		return "", ErrLoginIncomplete
	}
	return l.PlatformName() + ":" + l.User.ID, nil
}

// HasFeature reports whether the login advertises feature.
func (l Login) HasFeature(feature string) bool {
	for _, f := range l.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// MessageObject is a message as carried in events and API responses.
type MessageObject struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Channel   *Channel `json:"channel,omitempty"`
	Guild     *Guild   `json:"guild,omitempty"`
	Member    *Member  `json:"member,omitempty"`
	User      *User    `json:"user,omitempty"`
	CreatedAt *Time    `json:"created_at,omitempty"`
	UpdatedAt *Time    `json:"updated_at,omitempty"`
}

// ArgvInteraction is the command invocation of an interaction/command
// event.
type ArgvInteraction struct {
	Name      string          `json:"name"`
	Arguments []any           `json:"arguments"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// ButtonInteraction is the pressed button of an interaction/button event.
type ButtonInteraction struct {
	ID string `json:"id"`
}

// EventBody is the body of an EVENT envelope.
type EventBody struct {
	SN        int64              `json:"sn"`
	Type      string             `json:"type"`
	Timestamp Time               `json:"timestamp"`
	Login     *Login             `json:"login,omitempty"`
	Argv      *ArgvInteraction   `json:"argv,omitempty"`
	Button    *ButtonInteraction `json:"button,omitempty"`
	Channel   *Channel           `json:"channel,omitempty"`
	Guild     *Guild             `json:"guild,omitempty"`
	Member    *Member            `json:"member,omitempty"`
	Message   *MessageObject     `json:"message,omitempty"`
	Operator  *User              `json:"operator,omitempty"`
	Role      *Role              `json:"role,omitempty"`
	User      *User              `json:"user,omitempty"`
}

// Identify is sent by the client to authenticate. SN requests resumption
// after the given event.
type Identify struct {
	Token string `json:"token,omitempty"`
	SN    *int64 `json:"sn,omitempty"`
}

// Ready answers a successful Identify.
type Ready struct {
	Logins    []Login  `json:"logins"`
	ProxyURLs []string `json:"proxy_urls,omitempty"`
}

// Meta announces updated connection metadata.
type Meta struct {
	ProxyURLs []string `json:"proxy_urls"`
}

// PageResult is one page of a paginated list.
type PageResult[T any] struct {
	Data []T    `json:"data"`
	Next string `json:"next,omitempty"`
}
