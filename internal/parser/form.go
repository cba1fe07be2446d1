package parser

import (
	"bytes"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// ExtractToken returns the anti-forgery token the login form carries in
// the named hidden field (or a csrf-token meta tag). Missing tokens yield
// "" because some portal variants do not issue one.
func ExtractToken(body []byte, field string) string {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		sel := doc.Find(`input[name="` + field + `"]`).First()
		if v, ok := sel.Attr("value"); ok && v != "" {
			return v
		}
		if v, ok := doc.Find(`meta[name="csrf-token"]`).First().Attr("content"); ok && v != "" {
			return v
		}
	}
	re := regexp.MustCompile(`name="` + regexp.QuoteMeta(field) + `"\s+value="([^"]+)"`)
	if m := re.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}

// IsLoginForm reports whether body is the portal's login form, which data
// endpoints serve instead of content once the session is gone.
func IsLoginForm(body []byte, identifierField, secretField string) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(`input[name="`+identifierField+`"]`).Length() > 0 &&
		doc.Find(`input[name="`+secretField+`"]`).Length() > 0
}
