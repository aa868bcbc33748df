package satori

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nonebot/adapter-satori/message"
	"github.com/nonebot/adapter-satori/wire"
)

// maxResponseSize bounds REST and proxy response bodies.
const maxResponseSize = 64 << 20

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

// authedRequest builds a request carrying the bot's credentials and
// routing headers.
func (b *Bot) authedRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if b.info.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.info.Token)
	}
	req.Header.Set("Satori-Platform", b.Platform())
	req.Header.Set("Satori-User-ID", b.SelfID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Call invokes a Satori API method ("message.create", ...) with params as
// the JSON body and decodes the answer into dest when dest is non-nil.
// Non-2xx answers yield an *ActionFailed; transport failures wrap
// ErrNetwork.
func (b *Bot) Call(ctx context.Context, method string, params any, dest any) error {
	if params == nil {
		params = struct{}{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := b.authedRequest(ctx, http.MethodPost, b.info.APIBase()+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	log := b.logger()
	log.Debug("calling api", "method", method)
	resp, err := b.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNetwork, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %w", ErrNetwork, method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		af := &ActionFailed{Method: method, StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
		log.Warn("api call failed", "method", method, "status", resp.StatusCode)
		return af
	}

	if dest != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Messages
// --------------------------------------------------------------------------

// SendMessage sends msg to a channel and returns the created messages.
func (b *Bot) SendMessage(ctx context.Context, channelID string, msg message.Message) ([]wire.MessageObject, error) {
	return b.MessageCreate(ctx, channelID, msg.String())
}

// SendPrivateMessage opens a direct channel with the user and sends msg.
func (b *Bot) SendPrivateMessage(ctx context.Context, userID string, msg message.Message) ([]wire.MessageObject, error) {
	ch, err := b.UserChannelCreate(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return b.SendMessage(ctx, ch.ID, msg)
}

// Reply sends msg to the channel ev happened in, quoting ev's message
// when quote is set.
func (b *Bot) Reply(ctx context.Context, ev *Event, msg message.Message, quote bool) ([]wire.MessageObject, error) {
	if ev.Channel == nil {
		return nil, ErrNoChannel
	}
	if quote && ev.Message != nil {
		msg = message.New(message.Quote(ev.Message.ID)).Concat(msg)
	}
	return b.SendMessage(ctx, ev.Channel.ID, msg)
}

// MessageCreate sends raw markup content to a channel.
func (b *Bot) MessageCreate(ctx context.Context, channelID, content string) ([]wire.MessageObject, error) {
	var out []wire.MessageObject
	if err := b.Call(ctx, "message.create", messageCreateRequest{ChannelID: channelID, Content: content}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MessageGet fetches one message.
func (b *Bot) MessageGet(ctx context.Context, channelID, messageID string) (*wire.MessageObject, error) {
	var out wire.MessageObject
	if err := b.Call(ctx, "message.get", messageRef{ChannelID: channelID, MessageID: messageID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MessageDelete recalls a message.
func (b *Bot) MessageDelete(ctx context.Context, channelID, messageID string) error {
	return b.Call(ctx, "message.delete", messageRef{ChannelID: channelID, MessageID: messageID}, nil)
}

// MessageUpdate edits a message.
func (b *Bot) MessageUpdate(ctx context.Context, channelID, messageID string, msg message.Message) error {
	return b.Call(ctx, "message.update", messageUpdateRequest{
		ChannelID: channelID,
		MessageID: messageID,
		Content:   msg.String(),
	}, nil)
}

// MessageList lists messages in a channel.
func (b *Bot) MessageList(ctx context.Context, channelID string, opts MessageListOptions) (*MessagePage, error) {
	var out MessagePage
	if err := b.Call(ctx, "message.list", messageListRequest{ChannelID: channelID, MessageListOptions: opts}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --------------------------------------------------------------------------
// Channels and guilds
// --------------------------------------------------------------------------

// ChannelGet fetches a channel.
func (b *Bot) ChannelGet(ctx context.Context, channelID string) (*wire.Channel, error) {
	var out wire.Channel
	if err := b.Call(ctx, "channel.get", channelRef{ChannelID: channelID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChannelList lists the channels of a guild.
func (b *Bot) ChannelList(ctx context.Context, guildID, next string) (*wire.PageResult[wire.Channel], error) {
	var out wire.PageResult[wire.Channel]
	if err := b.Call(ctx, "channel.list", pageRequest{GuildID: guildID, Next: next}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserChannelCreate opens a direct channel with a user.
func (b *Bot) UserChannelCreate(ctx context.Context, userID, guildID string) (*wire.Channel, error) {
	var out wire.Channel
	if err := b.Call(ctx, "user.channel.create", userChannelRequest{UserID: userID, GuildID: guildID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GuildGet fetches a guild.
func (b *Bot) GuildGet(ctx context.Context, guildID string) (*wire.Guild, error) {
	var out wire.Guild
	if err := b.Call(ctx, "guild.get", guildRef{GuildID: guildID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GuildList lists the guilds the bot is in.
func (b *Bot) GuildList(ctx context.Context, next string) (*wire.PageResult[wire.Guild], error) {
	var out wire.PageResult[wire.Guild]
	if err := b.Call(ctx, "guild.list", pageRequest{Next: next}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GuildApprove answers a guild invitation.
func (b *Bot) GuildApprove(ctx context.Context, requestID string, approve bool, comment string) error {
	return b.Call(ctx, "guild.approve", guildRequestApproval{MessageID: requestID, Approve: approve, Comment: comment}, nil)
}

// GuildMemberGet fetches a guild member.
func (b *Bot) GuildMemberGet(ctx context.Context, guildID, userID string) (*wire.Member, error) {
	var out wire.Member
	if err := b.Call(ctx, "guild.member.get", guildMemberRef{GuildID: guildID, UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GuildMemberList lists the members of a guild.
func (b *Bot) GuildMemberList(ctx context.Context, guildID, next string) (*wire.PageResult[wire.Member], error) {
	var out wire.PageResult[wire.Member]
	if err := b.Call(ctx, "guild.member.list", pageRequest{GuildID: guildID, Next: next}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GuildMemberKick removes a user from a guild.
func (b *Bot) GuildMemberKick(ctx context.Context, guildID, userID string) error {
	return b.Call(ctx, "guild.member.kick", guildMemberRef{GuildID: guildID, UserID: userID}, nil)
}

// --------------------------------------------------------------------------
// Users, logins and reactions
// --------------------------------------------------------------------------

// UserGet fetches a user.
func (b *Bot) UserGet(ctx context.Context, userID string) (*wire.User, error) {
	var out wire.User
	if err := b.Call(ctx, "user.get", userRef{UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FriendList lists the bot's friends.
func (b *Bot) FriendList(ctx context.Context, next string) (*wire.PageResult[wire.User], error) {
	var out wire.PageResult[wire.User]
	if err := b.Call(ctx, "friend.list", pageRequest{Next: next}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginGet fetches the bot's current login and updates the cached copy.
func (b *Bot) LoginGet(ctx context.Context) (*wire.Login, error) {
	var out wire.Login
	if err := b.Call(ctx, "login.get", nil, &out); err != nil {
		return nil, err
	}
	if out.User != nil {
		b.update(out)
	}
	return &out, nil
}

// ReactionCreate adds an emoji reaction to a message.
func (b *Bot) ReactionCreate(ctx context.Context, channelID, messageID, emoji string) error {
	return b.Call(ctx, "reaction.create", reactionRequest{ChannelID: channelID, MessageID: messageID, Emoji: emoji}, nil)
}

// ReactionDelete removes a reaction. An empty userID removes the bot's own.
func (b *Bot) ReactionDelete(ctx context.Context, channelID, messageID, emoji, userID string) error {
	return b.Call(ctx, "reaction.delete", reactionRequest{ChannelID: channelID, MessageID: messageID, Emoji: emoji, UserID: userID}, nil)
}

// --------------------------------------------------------------------------
// Resources
// --------------------------------------------------------------------------

// ProxyURL rewrites a resource URL to go through the gateway proxy when
// it matches one of the announced prefixes or uses the internal scheme.
// Other URLs are returned unchanged.
func (b *Bot) ProxyURL(resource string) string {
	if strings.HasPrefix(resource, "internal:") {
		return b.info.APIBase() + "/proxy/" + resource
	}
	for _, prefix := range b.ProxyURLs() {
		if strings.HasPrefix(resource, prefix) {
			return b.info.APIBase() + "/proxy/" + resource
		}
	}
	return resource
}

// FetchResource downloads a resource, through the gateway proxy when
// the URL is proxied.
func (b *Bot) FetchResource(ctx context.Context, resource string) ([]byte, error) {
	target := b.ProxyURL(resource)
	var (
		req *http.Request
		err error
	)
	if target != resource {
		req, err = b.authedRequest(ctx, http.MethodGet, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	}
	if err != nil {
		return nil, err
	}

	resp, err := b.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrNetwork, resource, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrNetwork, resource, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ActionFailed{Method: "proxy", StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	}
	return data, nil
}
