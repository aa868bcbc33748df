package element

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	textEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	inlineEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

	namedEntities = strings.NewReplacer("&quot;", `"`, "&lt;", "<", "&gt;", ">")
	decEntity     = regexp.MustCompile(`&#(\d+);`)
	hexEntity     = regexp.MustCompile(`(?i)&#x([0-9a-f]+);`)
	ampEntity     = regexp.MustCompile(`&(amp|#38|#x26);`)
)

// Escape replaces the markup-significant characters of s with entities.
// Attribute values are escaped with inline set, which also covers the
// double quote.
func Escape(s string, inline bool) string {
	if inline {
		return inlineEscaper.Replace(s)
	}
	return textEscaper.Replace(s)
}

// Unescape reverses Escape. Numeric character references are decoded as
// well; the ampersand is restored last so that "&amp;lt;" yields "&lt;".
func Unescape(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	s = namedEntities.Replace(s)
	s = decEntity.ReplaceAllStringFunc(s, func(m string) string {
		code := m[2 : len(m)-1]
		if code == "38" {
			return m
		}
		return decodeRune(code, 10, m)
	})
	s = hexEntity.ReplaceAllStringFunc(s, func(m string) string {
		code := m[3 : len(m)-1]
		if strings.EqualFold(code, "26") {
			return m
		}
		return decodeRune(code, 16, m)
	})
	return ampEntity.ReplaceAllString(s, "&")
}

func decodeRune(code string, base int, fallback string) string {
	n, err := strconv.ParseInt(code, base, 32)
	if err != nil || n < 0 || n > unicode.MaxRune {
		return fallback
	}
	return string(rune(n))
}

// ParamCase turns camelCase and snake_case keys into the kebab-case form
// used for markup attributes.
func ParamCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	prevLower := false
	for _, r := range s {
		switch {
		case r == '_':
			b.WriteByte('-')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}
