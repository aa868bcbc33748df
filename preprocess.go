package satori

import (
	"context"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nonebot/adapter-satori/message"
)

// nicknamePattern matches a leading nickname followed by separators.
// It returns nil when there are no nicknames.
func nicknamePattern(nicknames []string) *regexp.Regexp {
	var names []string
	for _, n := range nicknames {
		if n != "" {
			names = append(names, regexp.QuoteMeta(n))
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return regexp.MustCompile(`(?i)^(` + strings.Join(names, "|") + `)([\s,，]*|$)`)
}

// preprocess strips addressing from a message event and sets ToMe.
func (b *Bot) preprocess(ctx context.Context, ev *Event) {
	b.checkReply(ctx, ev)
	b.checkAtMe(ev)
	b.checkNickname(ev)
}

func (b *Bot) isAtMe(seg message.Segment) bool {
	at, ok := seg.(*message.At)
	return ok && at.ID != "" && at.ID == b.SelfID()
}

// trimLeading left-trims the text segment at idx, dropping it if nothing
// is left.
func trimLeading(msg message.Message, idx int) message.Message {
	if idx >= len(msg) {
		return msg
	}
	t, ok := msg[idx].(*message.Text)
	if !ok {
		return msg
	}
	trimmed := t.TrimLeftFunc(unicode.IsSpace)
	if trimmed.Text == "" {
		return slices.Delete(msg, idx, idx+1)
	}
	msg[idx] = trimmed
	return msg
}

func padEmpty(msg message.Message) message.Message {
	if len(msg) == 0 {
		return message.Message{message.NewText("")}
	}
	return msg
}

// checkReply moves a leading quote into ev.Reply. A quote authored by the
// bot addresses it; a bare quote reference is resolved through the API.
func (b *Bot) checkReply(ctx context.Context, ev *Event) {
	msg := ev.Content
	idx := msg.Index("quote")
	if idx < 0 {
		return
	}
	quote, ok := msg[idx].(*message.RenderMessage)
	if !ok {
		return
	}
	ev.Reply = quote

	self := b.SelfID()
	if author := quote.Author(); author != nil {
		ev.ToMe = ev.ToMe || author.ID == self
	} else if quote.ID != "" && len(quote.Content) == 0 && ev.Channel != nil {
		fetched, err := b.MessageGet(ctx, ev.Channel.ID, quote.ID)
		if err != nil {
			b.logger().Debug("resolve quoted message failed", "message", quote.ID, "error", err)
		} else if fetched.User != nil && fetched.User.ID == self {
			ev.ToMe = true
		}
	}

	msg = slices.Delete(slices.Clone(msg), idx, idx+1)
	if idx < len(msg) && b.isAtMe(msg[idx]) {
		msg = slices.Delete(msg, idx, idx+1)
		ev.ToMe = true
	}
	msg = trimLeading(msg, idx)
	ev.Content = padEmpty(msg)
}

// checkAtMe strips a mention of the bot at either end of the message.
func (b *Bot) checkAtMe(ev *Event) {
	msg := padEmpty(slices.Clone(ev.Content))

	if b.isAtMe(msg[0]) {
		msg = slices.Delete(msg, 0, 1)
		ev.ToMe = true
		msg = trimLeading(msg, 0)
	} else {
		last := len(msg) - 1
		if t, ok := msg[last].(*message.Text); ok && len(msg) >= 2 && strings.TrimSpace(t.Text) == "" {
			last--
		}
		if b.isAtMe(msg[last]) {
			ev.ToMe = true
			msg = msg[:last]
		}
	}
	ev.Content = padEmpty(msg)
}

// checkNickname strips a leading nickname from the first text segment.
func (b *Bot) checkNickname(ev *Event) {
	re := b.client.nicknames
	if re == nil || len(ev.Content) == 0 {
		return
	}
	t, ok := ev.Content[0].(*message.Text)
	if !ok {
		return
	}
	loc := re.FindStringIndex(t.Text)
	if loc == nil {
		return
	}
	ev.ToMe = true
	msg := slices.Clone(ev.Content)
	msg[0] = t.Slice(utf8.RuneCountInString(t.Text[:loc[1]]))
	ev.Content = msg
}
