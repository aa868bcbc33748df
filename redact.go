package satori

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "***"

var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[^\s"']+`)

// RedactingHandler wraps a slog.Handler and masks bearer credentials and
// the configured secrets in messages and string attributes.
type RedactingHandler struct {
	handler  slog.Handler
	replacer *strings.Replacer
}

// NewRedactingHandler wraps handler. Empty secrets are ignored.
func NewRedactingHandler(handler slog.Handler, secrets ...string) *RedactingHandler {
	var pairs []string
	for _, s := range secrets {
		if s != "" {
			pairs = append(pairs, s, redacted)
		}
	}
	h := &RedactingHandler{handler: handler}
	if len(pairs) > 0 {
		h.replacer = strings.NewReplacer(pairs...)
	}
	return h
}

func (h *RedactingHandler) mask(s string) string {
	s = bearerPattern.ReplaceAllString(s, "${1}"+redacted)
	if h.replacer != nil {
		s = h.replacer.Replace(s)
	}
	return s
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	r := slog.NewRecord(record.Time, record.Level, h.mask(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(h.maskAttr(a))
		return true
	})
	return h.handler.Handle(ctx, r)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.maskAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(masked), replacer: h.replacer}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name), replacer: h.replacer}
}

func (h *RedactingHandler) maskAttr(a slog.Attr) slog.Attr {
	return slog.Attr{Key: a.Key, Value: h.maskValue(a.Value)}
}

func (h *RedactingHandler) maskValue(v slog.Value) slog.Value {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.StringValue(h.mask(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.StringValue(h.mask(err.Error()))
		}
		return v
	case slog.KindGroup:
		group := v.Group()
		masked := make([]slog.Attr, len(group))
		for i, a := range group {
			masked[i] = h.maskAttr(a)
		}
		return slog.GroupValue(masked...)
	}
	return v
}
