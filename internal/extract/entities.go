package extract

import (
	"regexp"
	"strings"

	"deepresearch/internal/types"
)

// Recognized entity families.
const (
	EntityCompany    = "company"
	EntityPerson     = "person"
	EntityTechnology = "technology"
)

var (
	companyRe = regexp.MustCompile(
		`\b((?:[A-Z][\w&.-]*[ \t]+){1,4}(?:Inc|Corp|Corporation|Ltd|LLC|Labs|Technologies|Systems|Group)\b\.?)`)

	personHonorificRe = regexp.MustCompile(
		`\b(?:Dr|Mr|Ms|Mrs|Prof)\.?[ \t]+([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+){0,2})\b`)
	personSpeechRe = regexp.MustCompile(
		`\b([A-Z][a-z]+[ \t]+[A-Z][a-z]+)[ \t]+(?:said|says|stated|announced|noted|argued|explained|reported)\b`)

	techAcronymRe = regexp.MustCompile(
		`\b([A-Z]{2,}[0-9]*(?:-[A-Za-z0-9.]+)?)\b`)
	techSuffixRe = regexp.MustCompile(
		`\b([A-Z][\w.+-]*(?:[ \t]+[A-Z][\w.+-]*)*[ \t]+(?:technology|platform|framework|protocol|algorithm|model))\b`)

	// Name tokens carry no periods, so an edge never crosses a sentence
	// boundary.
	relationRe = regexp.MustCompile(
		`\b([A-Z][\w&-]*(?:[ \t]+[A-Z][\w&-]*)*)[ \t]+(invests[ \t]+in|competes[ \t]+with|acquires)[ \t]+([A-Z][\w&-]*(?:[ \t]+[A-Z][\w&-]*)*)`)
)

// Acronyms that read like technology but never are.
var acronymStoplist = map[string]bool{
	"LLC": true, "INC": true, "LTD": true,
	"CEO": true, "CTO": true, "CFO": true, "COO": true,
	"USD": true, "EUR": true, "GBP": true, "GDP": true,
	"THE": true, "AND": true, "FOR": true, "NOT": true, "FAQ": true,
}

// entityConfidence applies to all pattern-derived entities and edges.
const entityConfidence = 0.7

// Entities extracts the requested families from text, deduplicated by
// (name, type) in first-seen order. Empty wanted means all families.
func Entities(text string, wanted []string) []types.Entity {
	want := map[string]bool{}
	if len(wanted) == 0 {
		want[EntityCompany] = true
		want[EntityPerson] = true
		want[EntityTechnology] = true
	} else {
		for _, w := range wanted {
			want[w] = true
		}
	}

	var out []types.Entity
	seen := map[string]bool{}
	add := func(name, entityType, evidence string) {
		name = strings.TrimSpace(name)
		if name == "" || !want[entityType] {
			return
		}
		key := name + "|" + entityType
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, types.Entity{
			Name:       name,
			EntityType: entityType,
			Evidence:   evidence,
			Confidence: entityConfidence,
		})
	}

	for _, m := range companyRe.FindAllStringSubmatch(text, -1) {
		add(strings.TrimSuffix(m[1], "."), EntityCompany, m[0])
	}
	for _, m := range personHonorificRe.FindAllStringSubmatch(text, -1) {
		add(m[1], EntityPerson, m[0])
	}
	for _, m := range personSpeechRe.FindAllStringSubmatch(text, -1) {
		add(m[1], EntityPerson, m[0])
	}
	for _, m := range techSuffixRe.FindAllStringSubmatch(text, -1) {
		add(m[1], EntityTechnology, m[0])
	}
	for _, m := range techAcronymRe.FindAllStringSubmatch(text, -1) {
		if acronymStoplist[m[1]] {
			continue
		}
		add(m[1], EntityTechnology, m[0])
	}
	return out
}

// Relationships extracts directed edges for the recognized verb set, with
// the full match as evidence.
func Relationships(text string) []types.Relationship {
	var out []types.Relationship
	for _, m := range relationRe.FindAllStringSubmatch(text, -1) {
		out = append(out, types.Relationship{
			SourceEntity:     strings.TrimSpace(m[1]),
			TargetEntity:     strings.TrimSpace(m[3]),
			RelationshipType: normalizeVerb(m[2]),
			Evidence:         m[0],
			Confidence:       entityConfidence,
		})
	}
	return out
}

func normalizeVerb(verb string) string {
	return strings.Join(strings.Fields(verb), " ")
}
