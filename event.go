package satori

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nonebot/adapter-satori/message"
	"github.com/nonebot/adapter-satori/wire"
)

// Event type names.
const (
	EventFriendRequest      = "friend-request"
	EventGuildAdded         = "guild-added"
	EventGuildRemoved       = "guild-removed"
	EventGuildRequest       = "guild-request"
	EventGuildUpdated       = "guild-updated"
	EventGuildMemberAdded   = "guild-member-added"
	EventGuildMemberRemoved = "guild-member-removed"
	EventGuildMemberRequest = "guild-member-request"
	EventGuildMemberUpdated = "guild-member-updated"
	EventGuildRoleCreated   = "guild-role-created"
	EventGuildRoleDeleted   = "guild-role-deleted"
	EventGuildRoleUpdated   = "guild-role-updated"
	EventLoginAdded         = "login-added"
	EventLoginRemoved       = "login-removed"
	EventLoginUpdated       = "login-updated"
	EventMessageCreated     = "message-created"
	EventMessageDeleted     = "message-deleted"
	EventMessageUpdated     = "message-updated"
	EventReactionAdded      = "reaction-added"
	EventReactionRemoved    = "reaction-removed"
	EventInteractionButton  = "interaction/button"
	EventInteractionCommand = "interaction/command"
	EventInternal           = "internal"
)

// Category groups event types by what they describe.
type Category string

const (
	CategoryNotice      Category = "notice"
	CategoryMessage     Category = "message"
	CategoryInteraction Category = "interaction"
	CategoryLogin       Category = "login"
	CategoryInternal    Category = "internal"
	CategoryUnknown     Category = "unknown"
)

// Scope tells direct conversations from guild channels.
type Scope string

const (
	ScopeNone    Scope = ""
	ScopePrivate Scope = "private"
	ScopePublic  Scope = "public"
)

type field uint16

const (
	fieldChannel field = 1 << iota
	fieldGuild
	fieldUser
	fieldMessage
	fieldRole
	fieldButton
)

var fieldNames = []struct {
	f    field
	name string
}{
	{fieldChannel, "channel"},
	{fieldGuild, "guild"},
	{fieldUser, "user"},
	{fieldMessage, "message"},
	{fieldRole, "role"},
	{fieldButton, "button"},
}

type eventKind struct {
	category Category
	action   string
	requires field
}

var eventKinds = map[string]eventKind{
	EventFriendRequest:      {CategoryNotice, "request", fieldUser},
	EventGuildAdded:         {CategoryNotice, "added", fieldGuild},
	EventGuildRemoved:       {CategoryNotice, "removed", fieldGuild},
	EventGuildRequest:       {CategoryNotice, "request", fieldGuild},
	EventGuildUpdated:       {CategoryNotice, "updated", fieldGuild},
	EventGuildMemberAdded:   {CategoryNotice, "added", fieldGuild | fieldUser},
	EventGuildMemberRemoved: {CategoryNotice, "removed", fieldGuild | fieldUser},
	EventGuildMemberRequest: {CategoryNotice, "request", fieldGuild | fieldUser},
	EventGuildMemberUpdated: {CategoryNotice, "updated", fieldGuild | fieldUser},
	EventGuildRoleCreated:   {CategoryNotice, "created", fieldGuild | fieldRole},
	EventGuildRoleDeleted:   {CategoryNotice, "deleted", fieldGuild | fieldRole},
	EventGuildRoleUpdated:   {CategoryNotice, "updated", fieldGuild | fieldRole},
	EventLoginAdded:         {CategoryLogin, "added", 0},
	EventLoginRemoved:       {CategoryLogin, "removed", 0},
	EventLoginUpdated:       {CategoryLogin, "updated", 0},
	EventMessageCreated:     {CategoryMessage, "created", fieldChannel | fieldUser | fieldMessage},
	EventMessageDeleted:     {CategoryMessage, "deleted", fieldChannel | fieldUser | fieldMessage},
	EventMessageUpdated:     {CategoryMessage, "updated", fieldChannel | fieldUser | fieldMessage},
	EventReactionAdded:      {CategoryNotice, "added", fieldChannel | fieldUser | fieldMessage},
	EventReactionRemoved:    {CategoryNotice, "removed", fieldChannel | fieldUser | fieldMessage},
	EventInteractionButton:  {CategoryInteraction, "button", fieldButton},
	EventInteractionCommand: {CategoryInteraction, "command", 0},
	EventInternal:           {CategoryInternal, "", 0},
}

// Event is a decoded EVENT payload.
type Event struct {
	Type      string
	SN        int64
	Timestamp time.Time
	Login     wire.Login

	Category Category
	Action   string
	Scope    Scope

	Argv     *wire.ArgvInteraction
	Button   *wire.ButtonInteraction
	Channel  *wire.Channel
	Guild    *wire.Guild
	Member   *wire.Member
	Message  *wire.MessageObject
	Operator *wire.User
	Role     *wire.Role
	User     *wire.User

	// Content is the parsed message content. Preprocessing strips
	// addressing from it; Original keeps the content as received.
	Content  message.Message
	Original message.Message
	// Reply is the quote the message answers, if any.
	Reply *message.RenderMessage
	// ToMe reports whether the event addresses the bot.
	ToMe bool

	Raw json.RawMessage
}

// DecodeEvent decodes an EVENT body. Types it does not know are kept
// with CategoryUnknown. When a known type lacks a required field the
// partially decoded event is returned with an ErrMalformedEvent error.
func DecodeEvent(raw json.RawMessage) (*Event, error) {
	var body wire.EventBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	ev := &Event{
		Type:      body.Type,
		SN:        body.SN,
		Timestamp: body.Timestamp.Time,
		Argv:      body.Argv,
		Button:    body.Button,
		Channel:   body.Channel,
		Guild:     body.Guild,
		Member:    body.Member,
		Message:   body.Message,
		Operator:  body.Operator,
		Role:      body.Role,
		User:      body.User,
		Raw:       raw,
	}
	if body.Login != nil {
		ev.Login = *body.Login
	}

	kind, ok := eventKinds[body.Type]
	if !ok {
		ev.Category = CategoryUnknown
		return ev, nil
	}
	ev.Category, ev.Action = kind.category, kind.action
	if missing := missingFields(&body, kind.requires); len(missing) > 0 {
		return ev, fmt.Errorf("%w: %s lacks %s", ErrMalformedEvent, body.Type, strings.Join(missing, ", "))
	}

	if ev.Message != nil {
		ev.Content = message.Parse(ev.Message.Content)
		ev.Original = ev.Content.Clone()
	}
	if ev.Channel != nil && (ev.Category == CategoryMessage || ev.Category == CategoryInteraction) {
		if ev.Channel.Type == wire.ChannelDirect {
			ev.Scope = ScopePrivate
			ev.ToMe = true
		} else {
			ev.Scope = ScopePublic
		}
	}
	return ev, nil
}

func missingFields(body *wire.EventBody, requires field) []string {
	present := map[field]bool{
		fieldChannel: body.Channel != nil,
		fieldGuild:   body.Guild != nil,
		fieldUser:    body.User != nil,
		fieldMessage: body.Message != nil,
		fieldRole:    body.Role != nil,
		fieldButton:  body.Button != nil,
	}
	var missing []string
	for _, fn := range fieldNames {
		if requires&fn.f != 0 && !present[fn.f] {
			missing = append(missing, fn.name)
		}
	}
	return missing
}

// UserID is the id of the acting user, or "".
func (e *Event) UserID() string {
	if e.User != nil {
		return e.User.ID
	}
	if e.Member != nil && e.Member.User != nil {
		return e.Member.User.ID
	}
	return ""
}

// ChannelID is the id of the channel the event happened in, or "".
func (e *Event) ChannelID() string {
	if e.Channel != nil {
		return e.Channel.ID
	}
	return ""
}

// GuildID is the id of the guild the event happened in, or "".
func (e *Event) GuildID() string {
	if e.Guild != nil {
		return e.Guild.ID
	}
	return ""
}

// MessageID is the id of the carried message, or "".
func (e *Event) MessageID() string {
	if e.Message != nil {
		return e.Message.ID
	}
	return ""
}

// SessionID identifies the conversation an event belongs to: the user for
// private messages, the channel and user otherwise.
func (e *Event) SessionID() string {
	switch e.Scope {
	case ScopePrivate:
		return "private:" + e.UserID()
	case ScopePublic:
		if g := e.GuildID(); g != "" {
			return g + "/" + e.ChannelID() + "/" + e.UserID()
		}
		return e.ChannelID() + "/" + e.UserID()
	}
	if id := e.UserID(); id != "" {
		return id
	}
	return e.Type
}

// PlainText is the plain text of Content.
func (e *Event) PlainText() string { return e.Content.ExtractPlainText() }

// IsToMe reports whether the event addresses the bot.
func (e *Event) IsToMe() bool { return e.ToMe || e.Scope == ScopePrivate }

func (e *Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", e.Type),
		slog.Int64("sn", e.SN),
	}
	if id := e.MessageID(); id != "" {
		attrs = append(attrs, slog.String("message", id))
	}
	if id := e.UserID(); id != "" {
		attrs = append(attrs, slog.String("user", id))
	}
	return slog.GroupValue(attrs...)
}
