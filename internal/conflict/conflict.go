// Package conflict detects disagreements between extracted facts that share
// an (entity, attribute) subject.
package conflict

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"deepresearch/internal/logging"
	"deepresearch/internal/types"
)

// Tolerance tunes what counts as a disagreement. Numerical is the relative
// difference above which a pair is at least moderate; Temporal names the
// period granularity within which two dated facts agree.
type Tolerance struct {
	Numerical float64 `json:"numerical"`
	Temporal  string  `json:"temporal"`
}

// DefaultTolerance returns the standard thresholds.
func DefaultTolerance() Tolerance {
	return Tolerance{Numerical: 0.05, Temporal: TemporalSameYear}
}

// Temporal tolerance granularities.
const (
	TemporalSameYear   = "same_year"
	TemporalSameDecade = "same_decade"
)

// Result is the output of one detection pass.
type Result struct {
	Conflicts       []types.Conflict `json:"conflicts"`
	TotalConflicts  int              `json:"total_conflicts"`
	SeveritySummary map[string]int   `json:"severity_summary"`
}

// criticalRatio is fixed: tolerance moves the moderate/minor boundary only.
const criticalRatio = 0.20

var yearRe = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

// Detect groups facts by (entity, attribute) and classifies every pair that
// disagrees. Numeric pairs grade by relative difference: above 0.20 critical,
// above the numerical tolerance moderate, otherwise minor. Dated pairs
// conflict when their years fall outside the temporal tolerance. Identical
// values never conflict. Empty input yields an empty result.
func Detect(facts []types.Fact, tol Tolerance) *Result {
	if tol.Numerical <= 0 {
		tol.Numerical = 0.05
	}
	if tol.Temporal == "" {
		tol.Temporal = TemporalSameYear
	}

	groups := map[string][]types.Fact{}
	var order []string
	for _, f := range facts {
		key := f.Entity + "\x00" + f.Attribute
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}
	sort.Strings(order)

	res := &Result{
		Conflicts:       []types.Conflict{},
		SeveritySummary: map[string]int{},
	}
	for _, key := range order {
		group := groups[key]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if c := comparePair(group[i], group[j], tol); c != nil {
					res.Conflicts = append(res.Conflicts, *c)
					res.SeveritySummary[c.Severity]++
				}
			}
		}
	}
	res.TotalConflicts = len(res.Conflicts)
	if res.TotalConflicts > 0 {
		logging.Extract().Debugf("conflict detection: %d conflicts across %d facts", res.TotalConflicts, len(facts))
	}
	return res
}

func comparePair(a, b types.Fact, tol Tolerance) *types.Conflict {
	if a.ValueNumeric != nil && b.ValueNumeric != nil {
		return compareNumeric(a, b, tol.Numerical)
	}
	return compareTemporal(a, b, tol.Temporal)
}

func compareNumeric(a, b types.Fact, tolerance float64) *types.Conflict {
	av, bv := *a.ValueNumeric, *b.ValueNumeric
	if av == bv {
		return nil
	}
	denom := math.Max(math.Abs(av), math.Abs(bv))
	if denom == 0 {
		return nil
	}
	ratio := math.Abs(av-bv) / denom

	var severity types.Severity
	switch {
	case ratio > criticalRatio:
		severity = types.SeverityCritical
	case ratio > tolerance:
		severity = types.SeverityModerate
	default:
		severity = types.SeverityMinor
	}

	pct := math.Round(ratio*1000) / 10
	return &types.Conflict{
		FactID1:       a.FactID,
		FactID2:       b.FactID,
		Entity:        a.Entity,
		Attribute:     a.Attribute,
		ConflictType:  string(types.ConflictNumerical),
		Severity:      string(severity),
		Facts:         []types.Fact{a, b},
		DifferencePct: &pct,
		Description: fmt.Sprintf("%s %s: %q vs %q differ by %.1f%%",
			a.Entity, a.Attribute, a.Value, b.Value, pct),
	}
}

func compareTemporal(a, b types.Fact, tolerance string) *types.Conflict {
	ay, aok := yearOf(a.Value)
	by, bok := yearOf(b.Value)
	if !aok || !bok {
		return nil
	}
	agree := ay == by
	if tolerance == TemporalSameDecade {
		agree = ay/10 == by/10
	}
	if agree {
		return nil
	}
	return &types.Conflict{
		FactID1:      a.FactID,
		FactID2:      b.FactID,
		Entity:       a.Entity,
		Attribute:    a.Attribute,
		ConflictType: string(types.ConflictTemporal),
		Severity:     string(types.SeverityModerate),
		Facts:        []types.Fact{a, b},
		Description: fmt.Sprintf("%s %s: %q and %q reference different years (%d vs %d)",
			a.Entity, a.Attribute, a.Value, b.Value, ay, by),
	}
}

// yearOf pulls the first four-digit year out of a fact value.
func yearOf(value string) (int, bool) {
	m := yearRe.FindString(value)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}
