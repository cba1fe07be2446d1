package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/model"
)

type rule struct {
	category model.AttendanceCategory
	keywords []string
	except   []string
}

// Classifier maps portal attendance labels onto categories by
// case- and accent-insensitive substring match. Rules are tried in order.
type Classifier struct {
	rules []rule
}

func NewClassifier(rules []config.AttendanceRule) *Classifier {
	c := &Classifier{}
	for _, r := range rules {
		cr := rule{category: model.AttendanceCategory(r.Category)}
		cr.keywords = foldAll(r.Keywords)
		cr.except = foldAll(r.Except)
		c.rules = append(c.rules, cr)
	}
	return c
}

func (c *Classifier) Classify(label string) model.AttendanceCategory {
	folded := fold(label)
	if folded == "" {
		return model.AttendanceOther
	}
	for _, r := range c.rules {
		if containsAny(folded, r.keywords) && !containsAny(folded, r.except) {
			return r.category
		}
	}
	return model.AttendanceOther
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func foldAll(keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if kw = fold(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

var stroke = strings.NewReplacer("ł", "l", "Ł", "l")

// fold lowercases and strips diacritics so "Spóźnienie" matches "spoznien".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, stroke.Replace(s))
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
