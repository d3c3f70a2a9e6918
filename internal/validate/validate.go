// Package validate implements citation completeness checking and source
// quality rating, the validation half of the extraction operator family.
package validate

import (
	"fmt"
	"net/url"

	"deepresearch/internal/errs"
	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

// Mode selects which validators run.
const (
	ModeCitation = "citation"
	ModeSource   = "source"
	ModeAll      = "all"
)

// Options carries the inputs of a single validation call.
type Options struct {
	Mode       string
	Citations  []types.Citation
	SourceURL  string
	SourceType string
	VerifyURLs bool
}

// CitationResult reports completeness for one citation, by input position.
type CitationResult struct {
	Index         int      `json:"index"`
	Complete      bool     `json:"complete"`
	MissingFields []string `json:"missing_fields,omitempty"`
	URLValid      *bool    `json:"url_valid,omitempty"`
}

// Result is the combined output of a validation call.
type Result struct {
	CitationResults   []CitationResult `json:"citation_results,omitempty"`
	SourceRating      *SourceRating    `json:"source_rating,omitempty"`
	CompleteCitations int              `json:"complete_citations"`
	TotalCitations    int              `json:"total_citations"`
	Issues            []string         `json:"issues"`
}

// Run executes the validators selected by opts.Mode.
func Run(opts Options) (*Result, error) {
	const op = "validate.Run"
	mode := opts.Mode
	if mode == "" {
		mode = ModeAll
	}
	switch mode {
	case ModeCitation, ModeSource, ModeAll:
	default:
		return nil, errs.Validation(op, fmt.Sprintf("mode must be citation, source, or all, got %q", mode))
	}
	if mode == ModeCitation && len(opts.Citations) == 0 {
		return nil, errs.Validation(op, "citations are required in citation mode")
	}
	if mode == ModeSource && opts.SourceURL == "" && opts.SourceType == "" {
		return nil, errs.Validation(op, "source_url or source_type is required in source mode")
	}
	if mode == ModeAll && len(opts.Citations) == 0 && opts.SourceURL == "" && opts.SourceType == "" {
		return nil, errs.Validation(op, "nothing to validate")
	}

	res := &Result{Issues: []string{}}

	if mode == ModeCitation || mode == ModeAll {
		checkCitations(opts, res)
	}
	if (mode == ModeSource || mode == ModeAll) && (opts.SourceURL != "" || opts.SourceType != "") {
		res.SourceRating = RateSource(opts.SourceURL, opts.SourceType)
	}

	logging.Extract().Debugf("validation complete: mode=%s citations=%d/%d issues=%d",
		mode, res.CompleteCitations, res.TotalCitations, len(res.Issues))
	return res, nil
}

// completenessFields are checked in this order so issue output is stable.
var completenessFields = []struct {
	name    string
	present func(*types.Citation) bool
}{
	{"author", func(c *types.Citation) bool { return c.Author != "" }},
	{"date", func(c *types.Citation) bool { return c.PublicationDate != "" }},
	{"title", func(c *types.Citation) bool { return c.Title != "" }},
	{"url", func(c *types.Citation) bool { return c.URL != "" }},
}

func checkCitations(opts Options, res *Result) {
	res.TotalCitations = len(opts.Citations)
	for i := range opts.Citations {
		c := &opts.Citations[i]
		cr := CitationResult{Index: i, Complete: true}
		for _, f := range completenessFields {
			if f.present(c) {
				continue
			}
			cr.Complete = false
			cr.MissingFields = append(cr.MissingFields, f.name)
			res.Issues = append(res.Issues, fmt.Sprintf("citation %d missing %s", i+1, f.name))
		}
		if cr.Complete {
			res.CompleteCitations++
		}
		if opts.VerifyURLs && c.URL != "" {
			valid := wellFormedURL(c.URL)
			cr.URLValid = &valid
			if !valid {
				res.Issues = append(res.Issues, fmt.Sprintf("citation %d has a malformed url: %s", i+1, c.URL))
			}
		}
		res.CitationResults = append(res.CitationResults, cr)
	}
}

// wellFormedURL is a syntactic check only. Network reachability belongs to
// the coordinator's executor.
func wellFormedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
