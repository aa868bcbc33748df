package element

import (
	"regexp"
	"strings"
)

var (
	tagPattern  = regexp.MustCompile(`<!--[\s\S]*?-->|<(/?)([^!\s>/]*)([^>]*?)\s*(/?)>`)
	attrPattern = regexp.MustCompile(`([^\s=]+)(?:="([^"]*)"|='([^']*)')?`)
)

// openTag is an element waiting for its closing tag.
type openTag struct {
	el    *Element
	start int    // offset of the opening tag in the input
	tag   string // opening tag text
}

// Parse converts markup into a list of top-level elements.
//
// Malformed input never fails. A closing tag without a matching open tag
// is kept as literal text. Open tags that are never closed, or that are
// skipped over by an outer closing tag, turn back into literal text
// followed by whatever children they had collected.
func Parse(src string) []*Element {
	root := &Element{Type: "template"}
	stack := []openTag{{el: root}}

	top := func() *Element { return stack[len(stack)-1].el }

	pushText := func(chunk string) {
		if chunk == "" {
			return
		}
		t := Text(Unescape(chunk))
		t.Source = chunk
		top().Children = append(top().Children, t)
	}

	// rollback unwinds the stack down to keep entries, turning every
	// unwound element into literal text plus its children.
	rollback := func(keep int) {
		for len(stack) > keep {
			child := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			parent := stack[len(stack)-1].el
			parent.Children = parent.Children[:len(parent.Children)-1]
			literal := Text(child.tag)
			literal.Source = child.tag
			parent.Children = append(parent.Children, literal)
			parent.Children = append(parent.Children, child.el.Children...)
		}
	}

	pos := 0
	for _, m := range tagPattern.FindAllStringSubmatchIndex(src, -1) {
		pushText(src[pos:m[0]])
		pos = m[1]
		raw := src[m[0]:m[1]]
		if strings.HasPrefix(raw, "<!--") {
			continue
		}

		closing := m[3] > m[2]
		name := src[m[4]:m[5]]
		if name == "" {
			name = "template"
		}

		if closing {
			idx := -1
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].el.Type == name {
					idx = i
					break
				}
			}
			if idx < 0 {
				stray := Text(raw)
				stray.Source = raw
				top().Children = append(top().Children, stray)
				continue
			}
			rollback(idx + 1)
			closed := stack[idx]
			closed.el.Source = src[closed.start:m[1]]
			stack = stack[:idx]
			continue
		}

		el := &Element{Type: name, Attrs: parseAttrs(src[m[6]:m[7]])}
		top().Children = append(top().Children, el)
		if m[9] > m[8] {
			el.Source = raw
			continue
		}
		stack = append(stack, openTag{el: el, start: m[0], tag: raw})
	}
	pushText(src[pos:])
	rollback(1)

	return root.Children
}

func parseAttrs(s string) Attrs {
	var attrs Attrs
	for _, m := range attrPattern.FindAllStringSubmatchIndex(s, -1) {
		key := s[m[2]:m[3]]
		switch {
		case m[4] >= 0:
			attrs.Set(key, Unescape(s[m[4]:m[5]]))
		case m[6] >= 0:
			attrs.Set(key, Unescape(s[m[6]:m[7]]))
		case strings.HasPrefix(key, "no-") && len(key) > 3:
			attrs.Set(key[3:], false)
		default:
			attrs.Set(key, true)
		}
	}
	return attrs
}
