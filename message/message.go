// Package message models Satori message content as a sequence of typed
// segments, converting to and from the markup handled by package element.
package message

import (
	"slices"
	"strings"

	"github.com/nonebot/adapter-satori/element"
)

// Message is an ordered list of segments. Messages built by this package
// never hold two adjacent Text segments.
type Message []Segment

// New builds a message from segments, merging adjacent text.
func New(segments ...Segment) Message {
	return Message(nil).Append(segments...)
}

// Parse decodes markup into a message.
func Parse(markup string) Message {
	return FromElements(element.Parse(markup))
}

// FromElements converts parsed markup into segments. Style tags are
// flattened into style ranges on the text they enclose.
func FromElements(elements []*element.Element) Message {
	var out Message
	for _, e := range elements {
		out = append(out, convert(e, nil)...)
	}
	return out.merged()
}

func convert(e *element.Element, styles []string) []Segment {
	children := func() Message {
		var m Message
		for _, c := range e.Children {
			m = append(m, convert(c, styles)...)
		}
		return m.merged()
	}

	switch tag := e.Type; {
	case tag == "text":
		t := NewText(e.Text())
		if len(styles) > 0 && t.Text != "" {
			t.Styles = []StyleRange{{Start: 0, End: t.Len(), Styles: slices.Clone(styles)}}
		}
		return []Segment{t}

	case tag == "at":
		return []Segment{&At{
			ID:   e.Attrs.Str("id"),
			Name: e.Attrs.Str("name"),
			Role: e.Attrs.Str("role"),
			Kind: e.Attrs.Str("type"),
		}}

	case tag == "sharp":
		return []Segment{&Sharp{ID: e.Attrs.Str("id"), Name: e.Attrs.Str("name")}}

	case tag == "img" || tag == "image" || tag == "audio" || tag == "video" || tag == "file":
		return []Segment{mediaFromElement(e, children())}

	case tag == "author":
		return []Segment{&Author{
			ID:     e.Attrs.Str("id"),
			Name:   e.Attrs.Str("name"),
			Avatar: e.Attrs.Str("avatar"),
		}}

	case tag == "a" || tag == "link":
		display, rest := leadingText(e, styles)
		return []Segment{&Link{Href: e.Attrs.Str("href"), Display: display, Children: rest}}

	case tag == "button":
		display, rest := leadingText(e, styles)
		return []Segment{&Button{
			Kind:     e.Attrs.Str("type"),
			ID:       e.Attrs.Str("id"),
			Href:     e.Attrs.Str("href"),
			Text:     e.Attrs.Str("text"),
			Theme:    e.Attrs.Str("theme"),
			Display:  display,
			Children: rest,
		}}

	case IsStyle(tag):
		nested := append(slices.Clone(styles), CanonicalStyle(tag))
		var out []Segment
		for _, c := range e.Children {
			out = append(out, convert(c, nested)...)
		}
		return out

	case tag == "br" || tag == "newline":
		return []Segment{&Br{}}

	case tag == "message" || tag == "quote":
		forward, _ := e.Attrs.Bool("forward")
		return []Segment{&RenderMessage{
			Tag:     tag,
			ID:      e.Attrs.Str("id"),
			Forward: forward,
			Content: children(),
			Extra:   e.Attrs.Without("id", "forward"),
		}}
	}

	return []Segment{&Custom{Tag: e.Type, Attrs: e.Attrs.Clone(), Children: children()}}
}

// leadingText splits an anchor-like element into the text of its first
// child and the remaining children.
func leadingText(e *element.Element, styles []string) (string, Message) {
	rest := e.Children
	display := ""
	if len(rest) > 0 && rest[0].IsText() {
		display = rest[0].Text()
		rest = rest[1:]
	}
	var m Message
	for _, c := range rest {
		m = append(m, convert(c, styles)...)
	}
	return display, m.merged()
}

func mediaFromElement(e *element.Element, children Message) *Media {
	tag := e.Type
	if tag == "image" {
		tag = "img"
	}
	m := &Media{
		Tag:      tag,
		Src:      e.Attrs.Str("src"),
		Title:    e.Attrs.Str("title"),
		Poster:   e.Attrs.Str("poster"),
		Children: children,
	}
	if v, ok := e.Attrs.Bool("cache"); ok {
		m.Cache = &v
	}
	if v, ok := e.Attrs.Int("timeout"); ok {
		m.Timeout = &v
	}
	if v, ok := e.Attrs.Int("width"); ok {
		m.Width = &v
	}
	if v, ok := e.Attrs.Int("height"); ok {
		m.Height = &v
	}
	if v, ok := e.Attrs.Float("duration"); ok {
		m.Duration = &v
	}
	m.Extra = e.Attrs.Without("src", "title", "poster", "cache", "timeout", "width", "height", "duration")
	return m
}

// merged folds every run of adjacent Text segments into one, shifting the
// style ranges of later pieces by the rune length before them. Merged
// texts are fresh values; the receiver is not modified.
func (m Message) merged() Message {
	if len(m) == 0 {
		return nil
	}
	out := make(Message, 0, len(m))
	for _, seg := range m {
		t, ok := seg.(*Text)
		if !ok {
			out = append(out, seg)
			continue
		}
		last, lastIsText := Segment(nil), false
		if n := len(out); n > 0 {
			last = out[n-1]
			_, lastIsText = last.(*Text)
		}
		if !lastIsText {
			out = append(out, t)
			continue
		}
		prev := last.(*Text)
		joined := prev.clone().(*Text)
		offset := joined.Len()
		joined.Text += t.Text
		for _, r := range t.Styles {
			r = r.clone()
			r.Start += offset
			r.End += offset
			joined.Styles = append(joined.Styles, r)
		}
		joined.Styles = Normalize(joined.Styles)
		out[len(out)-1] = joined
	}
	return out
}

// Append returns m followed by segments, with adjacent text merged.
func (m Message) Append(segments ...Segment) Message {
	out := make(Message, 0, len(m)+len(segments))
	out = append(out, m...)
	for _, s := range segments {
		if s != nil {
			out = append(out, s)
		}
	}
	return out.merged()
}

// AppendText appends plain text.
func (m Message) AppendText(s string) Message {
	return m.Append(NewText(s))
}

// Concat returns m followed by other.
func (m Message) Concat(other Message) Message {
	return m.Append(other...)
}

// String renders the message as markup.
func (m Message) String() string {
	var b strings.Builder
	for _, seg := range m {
		b.WriteString(seg.String())
	}
	return b.String()
}

// ExtractPlainText concatenates the text of every text-like segment.
func (m Message) ExtractPlainText() string {
	var b strings.Builder
	for _, seg := range m {
		if seg.IsText() {
			b.WriteString(seg.PlainText())
		}
	}
	return b.String()
}

// Clone returns a deep copy that shares nothing with m.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	out := make(Message, len(m))
	for i, seg := range m {
		out[i] = seg.clone()
	}
	return out
}

// Index returns the position of the first segment of type typ, or -1.
func (m Message) Index(typ string) int {
	return slices.IndexFunc(m, func(s Segment) bool { return s.Type() == typ })
}

// Query returns every segment of type typ, searching nested content of
// links, media, buttons, rendered messages and custom elements.
func (m Message) Query(typ string) []Segment {
	var out []Segment
	for _, seg := range m {
		if seg.Type() == typ {
			out = append(out, seg)
		}
		out = append(out, childrenOf(seg).Query(typ)...)
	}
	return out
}

// Has reports whether any top-level segment has type typ.
func (m Message) Has(typ string) bool { return m.Index(typ) >= 0 }

func childrenOf(seg Segment) Message {
	switch s := seg.(type) {
	case *Link:
		return s.Children
	case *Media:
		return s.Children
	case *Button:
		return s.Children
	case *RenderMessage:
		return s.Content
	case *Custom:
		return s.Children
	}
	return nil
}
