package satori

import "github.com/nonebot/adapter-satori/wire"

// --------------------------------------------------------------------------
// Request bodies
// --------------------------------------------------------------------------

type channelRef struct {
	ChannelID string `json:"channel_id"`
}

type messageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type messageCreateRequest struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

type messageUpdateRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type userChannelRequest struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id,omitempty"`
}

type guildRef struct {
	GuildID string `json:"guild_id"`
}

type guildMemberRef struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

type userRef struct {
	UserID string `json:"user_id"`
}

type pageRequest struct {
	ChannelID string `json:"channel_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
	Next      string `json:"next,omitempty"`
}

type reactionRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id,omitempty"`
}

type guildRequestApproval struct {
	MessageID string `json:"message_id"`
	Approve   bool   `json:"approve"`
	Comment   string `json:"comment,omitempty"`
}

// --------------------------------------------------------------------------
// Message listing
// --------------------------------------------------------------------------

// Direction selects which side of an anchor message to list.
type Direction string

const (
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
	DirectionAround Direction = "around"
)

// Order is the sort order of listed messages.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// MessageListOptions narrows message.list. Zero values are omitted.
type MessageListOptions struct {
	Next      string    `json:"next,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Order     Order     `json:"order,omitempty"`
}

type messageListRequest struct {
	ChannelID string `json:"channel_id"`
	MessageListOptions
}

// MessagePage is one page of message.list. Prev and Next continue the
// listing in either direction.
type MessagePage struct {
	Data []wire.MessageObject `json:"data"`
	Prev string               `json:"prev,omitempty"`
	Next string               `json:"next,omitempty"`
}
