package validate

import (
	"regexp"
	"strings"

	"deepresearch/internal/types"
)

var (
	// "Smith, J. (2024). AI Market Analysis. https://example.edu/report"
	// with an optional [n] or n. list marker.
	referenceRe = regexp.MustCompile(
		`^\s*((?:\[\d+\]|\d+\.)[ \t]*)?([A-Z][^()\n]{0,60}?)[ \t]*\((\d{4})\)[.:]?[ \t]*"?([^"\n]+?)"?\.?[ \t]*(https?://\S+)?[ \t]*$`)

	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)

	bareURLRe = regexp.MustCompile(`https?://[^\s<>")\]]+`)
)

// ParseCitations extracts citation records from free text: numbered or
// plain reference lines carrying author, year, title, and URL; markdown
// links; and bare URLs. Deduplicated by URL, reference lines first.
func ParseCitations(text string) []types.Citation {
	var out []types.Citation
	seenURL := map[string]bool{}
	seenRef := map[string]bool{}

	add := func(c types.Citation) {
		if c.URL != "" {
			if seenURL[c.URL] {
				return
			}
			seenURL[c.URL] = true
		} else {
			key := c.Author + "|" + c.PublicationDate + "|" + c.Title
			if seenRef[key] {
				return
			}
			seenRef[key] = true
		}
		out = append(out, c)
	}

	for _, line := range strings.Split(text, "\n") {
		m := referenceRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		// Prose with a parenthesized year is not a reference. A real entry
		// has a list marker, a URL, or a "Lastname, F." author.
		if m[1] == "" && m[5] == "" && !strings.Contains(m[2], ",") {
			continue
		}
		add(types.Citation{
			Author:          strings.TrimRight(strings.TrimSpace(m[2]), ".,"),
			PublicationDate: m[3],
			Title:           strings.TrimSpace(m[4]),
			URL:             trimURL(m[5]),
		})
	}
	for _, m := range markdownLinkRe.FindAllStringSubmatch(text, -1) {
		add(types.Citation{Title: strings.TrimSpace(m[1]), URL: trimURL(m[2])})
	}
	for _, u := range bareURLRe.FindAllString(text, -1) {
		add(types.Citation{URL: trimURL(u)})
	}
	return out
}

// trimURL drops trailing sentence punctuation picked up by the URL patterns.
func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:")
}
