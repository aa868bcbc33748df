package message

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/nonebot/adapter-satori/element"
)

// seam matches a closing tag immediately reopened, e.g. "</b><b>".
// Paragraphs are exempt since two adjacent paragraphs are not one.
var seam = regexp2.MustCompile(`</(\w+)(?<!/p)><\1>`, regexp2.None)

// Text is a run of characters with optional style ranges over rune
// offsets.
type Text struct {
	Text   string
	Styles []StyleRange
}

// NewText returns an unstyled text segment.
func NewText(s string) *Text { return &Text{Text: s} }

func (t *Text) Type() string      { return "text" }
func (t *Text) IsText() bool      { return true }
func (t *Text) PlainText() string { return t.Text }

func (t *Text) clone() Segment {
	out := &Text{Text: t.Text}
	if len(t.Styles) > 0 {
		out.Styles = make([]StyleRange, len(t.Styles))
		for i, r := range t.Styles {
			out.Styles[i] = r.clone()
		}
	}
	return out
}

// Len is the length of the text in runes, the unit of style offsets.
func (t *Text) Len() int { return utf8.RuneCountInString(t.Text) }

// Mark applies styles to [start, end). Aliases such as "strong" are
// stored under their canonical tag. Styles added to an existing range are
// appended to it; the result is normalized.
func (t *Text) Mark(start, end int, styles ...string) *Text {
	idx := slices.IndexFunc(t.Styles, func(r StyleRange) bool {
		return r.Start == start && r.End == end
	})
	if idx < 0 {
		t.Styles = append(t.Styles, StyleRange{Start: start, End: end})
		idx = len(t.Styles) - 1
	}
	for _, s := range styles {
		s = CanonicalStyle(s)
		if !slices.Contains(t.Styles[idx].Styles, s) {
			t.Styles[idx].Styles = append(t.Styles[idx].Styles, s)
		}
	}
	t.Styles = Normalize(t.Styles)
	return t
}

// Wrap applies style to the whole text as the outermost style.
func (t *Text) Wrap(style string) *Text {
	style = CanonicalStyle(style)
	n := t.Len()
	wrapped := make([]StyleRange, 0, len(t.Styles)+1)
	wrapped = append(wrapped, StyleRange{Start: 0, End: n, Styles: []string{style}})
	wrapped = append(wrapped, t.Styles...)
	t.Styles = Normalize(wrapped)
	return t
}

// Slice returns a new text without its first n runes. Style ranges are
// shifted and clipped to the remaining text.
func (t *Text) Slice(n int) *Text {
	if n <= 0 {
		return t.clone().(*Text)
	}
	runes := []rune(t.Text)
	if n > len(runes) {
		n = len(runes)
	}
	out := &Text{Text: string(runes[n:])}
	for _, r := range t.Styles {
		start, end := max(r.Start-n, 0), r.End-n
		if end <= start {
			continue
		}
		out.Styles = append(out.Styles, StyleRange{Start: start, End: end, Styles: slices.Clone(r.Styles)})
	}
	out.Styles = Normalize(out.Styles)
	return out
}

// TrimLeftFunc returns a new text with leading runes satisfying f removed.
func (t *Text) TrimLeftFunc(f func(rune) bool) *Text {
	trimmed := strings.TrimLeftFunc(t.Text, f)
	return t.Slice(utf8.RuneCountInString(t.Text) - utf8.RuneCountInString(trimmed))
}

// String renders the text as escaped markup with every styled run wrapped
// in its tags and redundant seams between runs removed.
func (t *Text) String() string {
	if len(t.Styles) == 0 {
		return element.Escape(t.Text, false)
	}
	runs := Normalize(t.Styles)
	runes := []rune(t.Text)

	var b strings.Builder
	cursor := 0
	for _, r := range runs {
		if r.Start >= len(runes) {
			break
		}
		end := min(r.End, len(runes))
		if r.Start > cursor {
			b.WriteString(element.Escape(string(runes[cursor:r.Start]), false))
		}
		for _, s := range r.Styles {
			b.WriteString("<" + s + ">")
		}
		b.WriteString(element.Escape(string(runes[r.Start:end]), false))
		for i := len(r.Styles) - 1; i >= 0; i-- {
			b.WriteString("</" + r.Styles[i] + ">")
		}
		cursor = end
	}
	if cursor < len(runes) {
		b.WriteString(element.Escape(string(runes[cursor:]), false))
	}

	out := b.String()
	for range maxDepth(runs) {
		collapsed, err := seam.Replace(out, "", -1, -1)
		if err != nil || collapsed == out {
			break
		}
		out = collapsed
	}
	return out
}

func styled(s, style string) *Text {
	return NewText(s).Wrap(style)
}

// Bold returns s styled bold.
func Bold(s string) *Text { return styled(s, StyleBold) }

// Italic returns s styled italic.
func Italic(s string) *Text { return styled(s, StyleItalic) }

// Underline returns s underlined.
func Underline(s string) *Text { return styled(s, StyleUnderline) }

// Strikethrough returns s struck through.
func Strikethrough(s string) *Text { return styled(s, StyleStrikethrough) }

// Spoiler returns s hidden behind a spoiler.
func Spoiler(s string) *Text { return styled(s, StyleSpoiler) }

// Code returns s as inline code.
func Code(s string) *Text { return styled(s, StyleCode) }

// Superscript returns s raised.
func Superscript(s string) *Text { return styled(s, StyleSuperscript) }

// Subscript returns s lowered.
func Subscript(s string) *Text { return styled(s, StyleSubscript) }

// Paragraph returns s as a paragraph.
func Paragraph(s string) *Text { return styled(s, StyleParagraph) }
