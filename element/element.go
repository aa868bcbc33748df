// Package element implements the Satori markup language: a small SGML-like
// tag syntax carried in message content. Parse turns markup into a tree of
// Elements and Element.String turns the tree back into markup.
package element

import (
	"fmt"
	"strconv"
	"strings"
)

// Attr is one markup attribute. Value holds a string, bool, int or float64.
type Attr struct {
	Key   string
	Value any
}

// Attrs is an ordered attribute list. Keys are unique.
type Attrs []Attr

// Get returns the value stored under key.
func (a Attrs) Get(key string) (any, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (a Attrs) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Str returns the value under key formatted as a string, or "" when absent.
func (a Attrs) Str(key string) string {
	v, ok := a.Get(key)
	if !ok || v == nil {
		return ""
	}
	return formatValue(v)
}

// Bool interprets the value under key as a flag. Strings are parsed the
// way strconv.ParseBool does; absent keys report ok=false.
func (a Attrs) Bool(key string) (value, ok bool) {
	v, found := a.Get(key)
	if !found {
		return false, false
	}
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return v != "", true
		}
		return b, true
	case int:
		return v != 0, true
	case float64:
		return v != 0, true
	}
	return false, false
}

// Int interprets the value under key as an integer.
func (a Attrs) Int(key string) (int, bool) {
	v, found := a.Get(key)
	if !found {
		return 0, false
	}
	switch v := v.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return n, true
	}
	return 0, false
}

// Float interprets the value under key as a float.
func (a Attrs) Float(key string) (float64, bool) {
	v, found := a.Get(key)
	if !found {
		return 0, false
	}
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Set stores value under key, replacing an existing entry in place.
func (a *Attrs) Set(key string, value any) {
	for i := range *a {
		if (*a)[i].Key == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attr{Key: key, Value: value})
}

// Delete removes key if present.
func (a *Attrs) Delete(key string) {
	for i := range *a {
		if (*a)[i].Key == key {
			*a = append((*a)[:i], (*a)[i+1:]...)
			return
		}
	}
}

// Clone returns an independent copy, or nil for an empty list.
func (a Attrs) Clone() Attrs {
	if len(a) == 0 {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// Without returns a copy of a that omits the given keys.
func (a Attrs) Without(keys ...string) Attrs {
	var out Attrs
outer:
	for _, attr := range a {
		for _, k := range keys {
			if attr.Key == k {
				continue outer
			}
		}
		out = append(out, attr)
	}
	return out
}

// Element is one node of parsed markup.
//
// A text node has Type "text", a single "text" attribute and no children.
// Source holds the verbatim markup the node was parsed from; String returns
// it unchanged so that untouched input round-trips byte for byte. The
// mutating helpers clear it, and so must code that edits fields directly.
type Element struct {
	Type     string
	Attrs    Attrs
	Children []*Element
	Source   string
}

// New builds an element from code.
func New(typ string, attrs Attrs, children ...*Element) *Element {
	return &Element{Type: typ, Attrs: attrs, Children: children}
}

// Text builds a text element.
func Text(s string) *Element {
	return &Element{Type: "text", Attrs: Attrs{{Key: "text", Value: s}}}
}

// IsText reports whether e is a text node.
func (e *Element) IsText() bool { return e.Type == "text" }

// Text returns the content of a text node and "" for anything else.
func (e *Element) Text() string {
	if !e.IsText() {
		return ""
	}
	return e.Attrs.Str("text")
}

// SetAttr updates an attribute and drops the cached source.
func (e *Element) SetAttr(key string, value any) {
	e.Attrs.Set(key, value)
	e.Source = ""
}

// Append adds children and drops the cached source.
func (e *Element) Append(children ...*Element) {
	e.Children = append(e.Children, children...)
	e.Source = ""
}

// String renders the element as markup.
func (e *Element) String() string {
	if e.Source != "" {
		return e.Source
	}
	if e.IsText() {
		return Escape(e.Text(), false)
	}
	inner := Join(e.Children)
	if e.Type == "template" {
		return inner
	}
	return Render(e.Type, e.Attrs, inner)
}

// Join renders a sibling list.
func Join(elements []*Element) string {
	var b strings.Builder
	for _, child := range elements {
		b.WriteString(child.String())
	}
	return b.String()
}

// Render writes a tag with the given attributes around inner markup.
// An empty inner produces a self-closing tag.
func Render(tag string, attrs Attrs, inner string) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tag)
	writeAttrs(&b, attrs)
	if inner == "" {
		b.WriteString("/>")
		return b.String()
	}
	b.WriteByte('>')
	b.WriteString(inner)
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteByte('>')
	return b.String()
}

func writeAttrs(b *strings.Builder, attrs Attrs) {
	for _, attr := range attrs {
		if attr.Value == nil {
			continue
		}
		key := ParamCase(attr.Key)
		switch v := attr.Value.(type) {
		case bool:
			b.WriteByte(' ')
			if !v {
				b.WriteString("no-")
			}
			b.WriteString(key)
		default:
			b.WriteByte(' ')
			b.WriteString(key)
			b.WriteString(`="`)
			b.WriteString(Escape(formatValue(v), true))
			b.WriteByte('"')
		}
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

// Select returns every descendant of elements whose type is typ, in
// document order.
func Select(elements []*Element, typ string) []*Element {
	var out []*Element
	for _, e := range elements {
		if e.Type == typ {
			out = append(out, e)
		}
		out = append(out, Select(e.Children, typ)...)
	}
	return out
}
