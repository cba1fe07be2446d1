package parser

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// groupSelector matches the fragments a portal cell is split into: one
// element per grade, or one per parallel class-group in a timetable cell.
const groupSelector = "div.text, span.grade-box a, span.grade, a.grade, [data-group]"

type group struct {
	text  string
	title string
}

type cell struct {
	text   string
	groups []group
}

type row []cell

var (
	reRow        = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	reCell       = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
	reTag        = regexp.MustCompile(`(?s)<[^>]+>`)
	reSpace      = regexp.MustCompile(`\s+`)
	reScriptBody = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
)

// treeRows walks the document with goquery. Rows without <td> cells
// (header rows) are skipped.
func treeRows(body []byte) []row {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var rows []row
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.ChildrenFiltered("td")
		if tds.Length() == 0 {
			return
		}
		r := make(row, 0, tds.Length())
		tds.Each(func(_ int, td *goquery.Selection) {
			c := cell{text: collapse(td.Text())}
			td.Find(groupSelector).Each(func(_ int, g *goquery.Selection) {
				title, _ := g.Attr("title")
				if title == "" {
					title, _ = g.Attr("data-title")
				}
				c.groups = append(c.groups, group{text: collapse(g.Text()), title: title})
			})
			r = append(r, c)
		})
		rows = append(rows, r)
	})
	return rows
}

// textRows is the last-resort scanner for markup goquery cannot make sense
// of. It only matches row and cell boundaries, so cells carry no groups.
func textRows(body []byte) []row {
	src := reScriptBody.ReplaceAllString(string(body), " ")
	var rows []row
	for _, m := range reRow.FindAllStringSubmatch(src, -1) {
		cells := reCell.FindAllStringSubmatch(m[1], -1)
		if len(cells) == 0 {
			continue
		}
		r := make(row, 0, len(cells))
		for _, c := range cells {
			r = append(r, cell{text: stripTags(c[1])})
		}
		rows = append(rows, r)
	}
	return rows
}

func stripTags(s string) string {
	return collapse(html.UnescapeString(reTag.ReplaceAllString(s, " ")))
}

func collapse(s string) string {
	return strings.TrimSpace(reSpace.ReplaceAllString(s, " "))
}

// fragments returns the texts and titles of a cell: its groups when the
// tree scanner found any, otherwise the whole cell text.
func (c cell) fragments() []group {
	if len(c.groups) > 0 {
		return c.groups
	}
	if c.text == "" {
		return nil
	}
	return []group{{text: c.text}}
}
