package message

import (
	"encoding/base64"
	"mime"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/nonebot/adapter-satori/element"
)

// Segment is one typed unit of a Message. The set of implementations is
// closed; unknown markup is carried by Custom.
type Segment interface {
	// Type is the markup tag the segment renders as.
	Type() string
	// IsText reports whether the segment contributes to plain text.
	IsText() bool
	PlainText() string
	String() string
	clone() Segment
}

// At mentions a user, a role, or everyone ("all" or "here" in Kind).
type At struct {
	ID   string
	Name string
	Role string
	Kind string
}

// AtUser mentions one user.
func AtUser(id, name string) *At { return &At{ID: id, Name: name} }

// AtRole mentions every member of a role.
func AtRole(role, name string) *At { return &At{Role: role, Name: name} }

// AtAll mentions everyone, or only online members when here is set.
func AtAll(here bool) *At {
	if here {
		return &At{Kind: "here"}
	}
	return &At{Kind: "all"}
}

func (a *At) Type() string      { return "at" }
func (a *At) IsText() bool      { return false }
func (a *At) PlainText() string { return "" }
func (a *At) clone() Segment    { c := *a; return &c }

func (a *At) String() string {
	var attrs element.Attrs
	setNonEmpty(&attrs, "id", a.ID)
	setNonEmpty(&attrs, "name", a.Name)
	setNonEmpty(&attrs, "role", a.Role)
	setNonEmpty(&attrs, "type", a.Kind)
	return element.Render("at", attrs, "")
}

// Sharp references a channel.
type Sharp struct {
	ID   string
	Name string
}

// NewSharp references channel id.
func NewSharp(id, name string) *Sharp { return &Sharp{ID: id, Name: name} }

func (s *Sharp) Type() string      { return "sharp" }
func (s *Sharp) IsText() bool      { return false }
func (s *Sharp) PlainText() string { return "" }
func (s *Sharp) clone() Segment    { c := *s; return &c }

func (s *Sharp) String() string {
	var attrs element.Attrs
	setNonEmpty(&attrs, "id", s.ID)
	setNonEmpty(&attrs, "name", s.Name)
	return element.Render("sharp", attrs, "")
}

// Link is a hyperlink. Display is the leading text of the anchor and
// Children holds whatever markup followed it.
type Link struct {
	Href     string
	Display  string
	Children Message
}

// NewLink builds a link with optional display text.
func NewLink(href, display string) *Link { return &Link{Href: href, Display: display} }

func (l *Link) Type() string      { return "link" }
func (l *Link) IsText() bool      { return true }
func (l *Link) PlainText() string { return l.Display + l.Children.ExtractPlainText() }

func (l *Link) clone() Segment {
	return &Link{Href: l.Href, Display: l.Display, Children: l.Children.Clone()}
}

func (l *Link) String() string {
	inner := element.Escape(l.Display, false) + l.Children.String()
	return element.Render("a", element.Attrs{{Key: "href", Value: l.Href}}, inner)
}

// Media is an image, audio, video or file resource. Tag is one of "img",
// "audio", "video" and "file". Attributes outside the known set are kept
// in Extra.
type Media struct {
	Tag      string
	Src      string
	Title    string
	Poster   string
	Cache    *bool
	Timeout  *int
	Width    *int
	Height   *int
	Duration *float64
	Extra    element.Attrs
	Children Message
}

// Image references an image by URL.
func Image(src string) *Media { return &Media{Tag: "img", Src: src} }

// Audio references an audio clip by URL.
func Audio(src string) *Media { return &Media{Tag: "audio", Src: src} }

// Video references a video by URL.
func Video(src string) *Media { return &Media{Tag: "video", Src: src} }

// File references a file by URL.
func File(src string) *Media { return &Media{Tag: "file", Src: src} }

// MediaFromPath builds a media segment pointing at a local file. The
// base name becomes the title.
func MediaFromPath(tag, path string) (*Media, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return &Media{Tag: tag, Src: u.String(), Title: filepath.Base(abs)}, nil
}

// MediaFromBytes embeds raw bytes as a data URL. An empty mimeType is
// guessed from name's extension.
func MediaFromBytes(tag string, raw []byte, mimeType, name string) *Media {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	src := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
	return &Media{Tag: tag, Src: src, Title: name}
}

func (m *Media) Type() string      { return m.Tag }
func (m *Media) IsText() bool      { return false }
func (m *Media) PlainText() string { return "" }

func (m *Media) clone() Segment {
	c := *m
	c.Cache = clonePtr(m.Cache)
	c.Timeout = clonePtr(m.Timeout)
	c.Width = clonePtr(m.Width)
	c.Height = clonePtr(m.Height)
	c.Duration = clonePtr(m.Duration)
	c.Extra = m.Extra.Clone()
	c.Children = m.Children.Clone()
	return &c
}

func (m *Media) String() string {
	var attrs element.Attrs
	setNonEmpty(&attrs, "src", m.Src)
	setNonEmpty(&attrs, "title", m.Title)
	if m.Cache != nil {
		attrs.Set("cache", *m.Cache)
	}
	if m.Timeout != nil {
		attrs.Set("timeout", *m.Timeout)
	}
	if m.Width != nil {
		attrs.Set("width", *m.Width)
	}
	if m.Height != nil {
		attrs.Set("height", *m.Height)
	}
	if m.Duration != nil {
		attrs.Set("duration", strconv.FormatFloat(*m.Duration, 'f', -1, 64))
	}
	setNonEmpty(&attrs, "poster", m.Poster)
	attrs = append(attrs, m.Extra...)
	return element.Render(m.Tag, attrs, m.Children.String())
}

// Author describes the sender inside a rendered message.
type Author struct {
	ID     string
	Name   string
	Avatar string
}

// NewAuthor builds an author segment.
func NewAuthor(id, name, avatar string) *Author {
	return &Author{ID: id, Name: name, Avatar: avatar}
}

func (a *Author) Type() string      { return "author" }
func (a *Author) IsText() bool      { return false }
func (a *Author) PlainText() string { return "" }
func (a *Author) clone() Segment    { c := *a; return &c }

func (a *Author) String() string {
	var attrs element.Attrs
	setNonEmpty(&attrs, "id", a.ID)
	setNonEmpty(&attrs, "name", a.Name)
	setNonEmpty(&attrs, "avatar", a.Avatar)
	return element.Render("author", attrs, "")
}

// Button kinds.
const (
	ButtonAction = "action"
	ButtonLink   = "link"
	ButtonInput  = "input"
)

// Button is an interactive button. Which of ID, Href and Text is sent
// depends on Kind.
type Button struct {
	Kind     string
	ID       string
	Href     string
	Text     string
	Theme    string
	Display  string
	Children Message
}

// ActionButton triggers an interaction/button event with id.
func ActionButton(id, display, theme string) *Button {
	return &Button{Kind: ButtonAction, ID: id, Display: display, Theme: theme}
}

// LinkButton opens href.
func LinkButton(href, display, theme string) *Button {
	return &Button{Kind: ButtonLink, Href: href, Display: display, Theme: theme}
}

// InputButton fills text into the input box.
func InputButton(text, display, theme string) *Button {
	return &Button{Kind: ButtonInput, Text: text, Display: display, Theme: theme}
}

func (b *Button) Type() string      { return "button" }
func (b *Button) IsText() bool      { return false }
func (b *Button) PlainText() string { return "" }

func (b *Button) clone() Segment {
	c := *b
	c.Children = b.Children.Clone()
	return &c
}

func (b *Button) String() string {
	var attrs element.Attrs
	setNonEmpty(&attrs, "type", b.Kind)
	switch b.Kind {
	case ButtonAction:
		attrs.Set("id", b.ID)
	case ButtonLink:
		attrs.Set("href", b.Href)
	case ButtonInput:
		attrs.Set("text", b.Text)
	default:
		setNonEmpty(&attrs, "id", b.ID)
		setNonEmpty(&attrs, "href", b.Href)
		setNonEmpty(&attrs, "text", b.Text)
	}
	setNonEmpty(&attrs, "theme", b.Theme)
	inner := element.Escape(b.Display, false) + b.Children.String()
	return element.Render("button", attrs, inner)
}

// RenderMessage embeds a message: Tag "quote" for a reply reference, or
// "message" for a standalone or forwarded message.
type RenderMessage struct {
	Tag     string
	ID      string
	Forward bool
	Content Message
	Extra   element.Attrs
}

// Quote references the message with id.
func Quote(id string) *RenderMessage { return &RenderMessage{Tag: "quote", ID: id} }

// NewRenderMessage wraps content as a message element.
func NewRenderMessage(id string, content Message) *RenderMessage {
	return &RenderMessage{Tag: "message", ID: id, Content: content}
}

// Forward wraps content as a forwarded message.
func Forward(id string, content Message) *RenderMessage {
	return &RenderMessage{Tag: "message", ID: id, Forward: true, Content: content}
}

func (r *RenderMessage) Type() string      { return r.Tag }
func (r *RenderMessage) IsText() bool      { return false }
func (r *RenderMessage) PlainText() string { return "" }

func (r *RenderMessage) clone() Segment {
	c := *r
	c.Content = r.Content.Clone()
	c.Extra = r.Extra.Clone()
	return &c
}

// Author returns the first author segment of the embedded content.
func (r *RenderMessage) Author() *Author {
	for _, seg := range r.Content {
		if a, ok := seg.(*Author); ok {
			return a
		}
	}
	return nil
}

func (r *RenderMessage) String() string {
	var attrs element.Attrs
	setNonEmpty(&attrs, "id", r.ID)
	if r.Forward {
		attrs.Set("forward", true)
	}
	attrs = append(attrs, r.Extra...)
	return element.Render(r.Tag, attrs, r.Content.String())
}

// Br is a hard line break.
type Br struct{}

// NewBr returns a line break.
func NewBr() *Br { return &Br{} }

func (*Br) Type() string      { return "br" }
func (*Br) IsText() bool      { return true }
func (*Br) PlainText() string { return "\n" }
func (*Br) String() string    { return "<br/>" }
func (*Br) clone() Segment    { return &Br{} }

// Raw is markup emitted verbatim, without escaping.
type Raw struct {
	Text string
}

// NewRaw wraps verbatim markup.
func NewRaw(s string) *Raw { return &Raw{Text: s} }

func (r *Raw) Type() string      { return "raw" }
func (r *Raw) IsText() bool      { return true }
func (r *Raw) PlainText() string { return r.Text }
func (r *Raw) String() string    { return r.Text }
func (r *Raw) clone() Segment    { c := *r; return &c }

// Custom carries a tag this package has no dedicated segment for.
type Custom struct {
	Tag      string
	Attrs    element.Attrs
	Children Message
}

func (c *Custom) Type() string      { return c.Tag }
func (c *Custom) IsText() bool      { return false }
func (c *Custom) PlainText() string { return "" }

func (c *Custom) clone() Segment {
	return &Custom{Tag: c.Tag, Attrs: c.Attrs.Clone(), Children: c.Children.Clone()}
}

func (c *Custom) String() string {
	return element.Render(c.Tag, c.Attrs, c.Children.String())
}

func setNonEmpty(attrs *element.Attrs, key, value string) {
	if value != "" {
		attrs.Set(key, value)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
