// Package parser turns raw portal payloads into domain records.
//
// The portal has served at least two shapes over time: server-rendered HTML
// tables and a JSON document keyed by date. Every resource parser tries the
// JSON shape first, then walks the HTML tree, then falls back to scanning
// the raw markup with regular expressions. A payload none of them
// understands yields an empty result flagged as degraded, never an error.
package parser

import (
	"bytes"

	"integration-school-portal/internal/logger"
)

type Strategy string

const (
	StrategyJSON     Strategy = "json"
	StrategyHTMLTree Strategy = "html-tree"
	StrategyHTMLText Strategy = "html-text"
	StrategyNone     Strategy = "none"
)

// Outcome reports which strategy produced a result. Degraded is set when a
// non-empty payload matched no strategy.
type Outcome struct {
	Strategy Strategy
	Degraded bool
}

type attempt[T any] struct {
	name  Strategy
	parse func(body []byte) (T, bool)
}

func dispatch[T any](body []byte, attempts ...attempt[T]) (T, Outcome) {
	var zero T
	if len(bytes.TrimSpace(body)) == 0 {
		return zero, Outcome{Strategy: StrategyNone}
	}
	for _, a := range attempts {
		if v, ok := try(a, body); ok {
			return v, Outcome{Strategy: a.name}
		}
	}
	return zero, Outcome{Strategy: StrategyNone, Degraded: true}
}

func try[T any](a attempt[T], body []byte) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.For("parser")
			log.Error().Interface("panic", r).Str("strategy", string(a.name)).Msg("Parser strategy panicked")
			var zero T
			v, ok = zero, false
		}
	}()
	return a.parse(body)
}

func looksLikeJSON(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) > 0 && (b[0] == '{' || b[0] == '[')
}

func looksLikeHTML(body []byte) bool {
	return bytes.IndexByte(body, '<') >= 0
}
