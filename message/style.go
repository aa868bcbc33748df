package message

import (
	"slices"
	"sort"
)

// Canonical style tags.
const (
	StyleBold          = "b"
	StyleItalic        = "i"
	StyleUnderline     = "u"
	StyleStrikethrough = "s"
	StyleSpoiler       = "spl"
	StyleCode          = "code"
	StyleSuperscript   = "sup"
	StyleSubscript     = "sub"
	StyleParagraph     = "p"
)

var styleAliases = map[string]string{
	"b":           StyleBold,
	"strong":      StyleBold,
	"bold":        StyleBold,
	"i":           StyleItalic,
	"em":          StyleItalic,
	"italic":      StyleItalic,
	"u":           StyleUnderline,
	"ins":         StyleUnderline,
	"underline":   StyleUnderline,
	"s":           StyleStrikethrough,
	"del":         StyleStrikethrough,
	"strike":      StyleStrikethrough,
	"spl":         StyleSpoiler,
	"spoiler":     StyleSpoiler,
	"code":        StyleCode,
	"sup":         StyleSuperscript,
	"superscript": StyleSuperscript,
	"sub":         StyleSubscript,
	"subscript":   StyleSubscript,
	"p":           StyleParagraph,
	"paragraph":   StyleParagraph,
}

// CanonicalStyle maps a style tag or one of its aliases to the canonical
// tag. Unknown names are returned unchanged.
func CanonicalStyle(name string) string {
	if s, ok := styleAliases[name]; ok {
		return s
	}
	return name
}

// IsStyle reports whether tag is a style tag or alias.
func IsStyle(tag string) bool {
	_, ok := styleAliases[tag]
	return ok
}

// StyleRange applies Styles, outermost first, to the half-open rune range
// [Start, End) of a Text.
type StyleRange struct {
	Start  int
	End    int
	Styles []string
}

func (r StyleRange) clone() StyleRange {
	r.Styles = slices.Clone(r.Styles)
	return r
}

// Normalize rewrites ranges into the canonical partition: every rune gets
// the ordered, deduplicated list of styles applied to it (first application
// wins the position), and consecutive runes with identical lists are merged
// into maximal runs sorted by start. Runes without styles are not covered.
// Normalize is idempotent and returns nil when nothing is styled.
func Normalize(ranges []StyleRange) []StyleRange {
	if len(ranges) == 0 {
		return nil
	}
	perRune := make(map[int][]string)
	for _, r := range ranges {
		for i := max(r.Start, 0); i < r.End; i++ {
			for _, s := range r.Styles {
				if !slices.Contains(perRune[i], s) {
					perRune[i] = append(perRune[i], s)
				}
			}
		}
	}
	if len(perRune) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(perRune))
	for i, styles := range perRune {
		if len(styles) > 0 {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	var out []StyleRange
	for _, i := range indexes {
		styles := perRune[i]
		if n := len(out); n > 0 && out[n-1].End == i && slices.Equal(out[n-1].Styles, styles) {
			out[n-1].End = i + 1
			continue
		}
		out = append(out, StyleRange{Start: i, End: i + 1, Styles: styles})
	}
	return out
}

func maxDepth(ranges []StyleRange) int {
	depth := 0
	for _, r := range ranges {
		depth = max(depth, len(r.Styles))
	}
	return depth
}
