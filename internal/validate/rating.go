package validate

import (
	"fmt"
	"net/url"
	"strings"

	"deepresearch/internal/types"
)

// SourceRating is the A-E quality verdict for one source.
type SourceRating struct {
	Rating        string   `json:"rating"`
	Score         float64  `json:"score"`
	Justification string   `json:"justification"`
	Indicators    []string `json:"credibility_indicators,omitempty"`
}

// typeRatings maps an explicit source_type to its rating. An explicit type
// outranks host heuristics.
var typeRatings = map[string]struct {
	rating    string
	indicator string
}{
	"academic":   {"A", "peer-reviewed venue"},
	"official":   {"A", "government or institutional publication"},
	"government": {"A", "government or institutional publication"},
	"industry":   {"B", "industry analyst report"},
	"analyst":    {"B", "industry analyst report"},
	"news":       {"C", "news organization"},
	"blog":       {"D", "self-published platform"},
	"anonymous":  {"E", "no attributable source"},
}

// hostRules are checked in order; the first hit wins.
var hostRules = []struct {
	domains   []string
	rating    string
	indicator string
}{
	{
		domains:   []string{"arxiv.org", "nature.com", "science.org", "ieee.org", "acm.org", "springer.com", "jstor.org", "pubmed.ncbi.nlm.nih.gov"},
		rating:    "A",
		indicator: "peer-reviewed venue",
	},
	{
		domains:   []string{"who.int", "un.org", "europa.eu", "worldbank.org", "imf.org"},
		rating:    "A",
		indicator: "government or institutional publication",
	},
	{
		domains:   []string{"gartner.com", "forrester.com", "idc.com", "mckinsey.com", "statista.com", "pwc.com", "deloitte.com"},
		rating:    "B",
		indicator: "industry analyst report",
	},
	{
		domains:   []string{"reuters.com", "apnews.com", "bbc.com", "bbc.co.uk", "nytimes.com", "wsj.com", "ft.com", "theguardian.com", "bloomberg.com", "economist.com"},
		rating:    "C",
		indicator: "news organization",
	},
	{
		domains:   []string{"medium.com", "substack.com", "blogspot.com", "wordpress.com", "dev.to", "hashnode.dev"},
		rating:    "D",
		indicator: "self-published platform",
	},
}

// RateSource derives an A-E rating from an explicit source type or, failing
// that, from the URL's host. Academic and official hosts rate A, analysts B,
// news C, blogs D, a missing source E. A URL whose host matches no rule
// rates C.
func RateSource(sourceURL, sourceType string) *SourceRating {
	if t, ok := typeRatings[strings.ToLower(strings.TrimSpace(sourceType))]; ok {
		return &SourceRating{
			Rating:        t.rating,
			Score:         types.SourceQualityScore(t.rating),
			Justification: fmt.Sprintf("rated %s from declared source type %q", t.rating, sourceType),
			Indicators:    []string{t.indicator},
		}
	}

	host := hostOf(sourceURL)
	if host == "" {
		return &SourceRating{
			Rating:        "E",
			Score:         types.SourceQualityScore("E"),
			Justification: "rated E: no source URL or recognized source type",
			Indicators:    []string{"no attributable source"},
		}
	}

	if strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".ac.uk") {
		return hostRating("A", host, "academic domain")
	}
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") {
		return hostRating("A", host, "government domain")
	}
	for _, rule := range hostRules {
		for _, d := range rule.domains {
			if hostIs(host, d) {
				return hostRating(rule.rating, host, rule.indicator)
			}
		}
	}
	if strings.HasPrefix(host, "blog.") {
		return hostRating("D", host, "self-published platform")
	}

	return &SourceRating{
		Rating:        "C",
		Score:         types.SourceQualityScore("C"),
		Justification: fmt.Sprintf("rated C: host %s matches no known tier, treated as unverified press", host),
		Indicators:    []string{"unrecognized publisher"},
	}
}

func hostRating(rating, host, indicator string) *SourceRating {
	return &SourceRating{
		Rating:        rating,
		Score:         types.SourceQualityScore(rating),
		Justification: fmt.Sprintf("rated %s from host %s", rating, host),
		Indicators:    []string{indicator},
	}
}

// hostOf extracts a lowercased host, tolerating bare hostnames without a
// scheme. The www prefix is stripped.
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return ""
		}
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func hostIs(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
