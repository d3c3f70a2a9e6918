package conflict

import (
	"testing"

	"deepresearch/internal/types"
)

func numFact(id, entity, attribute, value string, numeric float64) types.Fact {
	return types.Fact{
		FactID:       id,
		Entity:       entity,
		Attribute:    attribute,
		Value:        value,
		ValueType:    "number",
		ValueNumeric: &numeric,
	}
}

func dateFact(id, entity, attribute, value string) types.Fact {
	return types.Fact{
		FactID: id, Entity: entity, Attribute: attribute,
		Value: value, ValueType: "date",
	}
}

func TestNumericalSeverities(t *testing.T) {
	tests := []struct {
		name     string
		a, b     float64
		severity string
		pct      float64
	}{
		{"Critical", 28.4, 19.2, "critical", 32.4},
		{"Moderate", 110, 100, "moderate", 9.1},
		{"Minor", 103, 100, "minor", 2.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := []types.Fact{
				numFact("f1", "AI", "market growth", "", tt.a),
				numFact("f2", "AI", "market growth", "", tt.b),
			}
			res := Detect(facts, DefaultTolerance())
			if res.TotalConflicts != 1 {
				t.Fatalf("Expected 1 conflict, got %d", res.TotalConflicts)
			}
			c := res.Conflicts[0]
			if c.Severity != tt.severity {
				t.Errorf("Severity = %s, want %s", c.Severity, tt.severity)
			}
			if c.DifferencePct == nil || *c.DifferencePct != tt.pct {
				t.Errorf("DifferencePct = %v, want %.1f", c.DifferencePct, tt.pct)
			}
			if c.ConflictType != "numerical" {
				t.Errorf("ConflictType = %s", c.ConflictType)
			}
			if len(c.Facts) != 2 || c.FactID1 != "f1" || c.FactID2 != "f2" {
				t.Errorf("Pair not carried: %+v", c)
			}
		})
	}
}

func TestIdenticalValuesAgree(t *testing.T) {
	facts := []types.Fact{
		numFact("f1", "Acme", "revenue", "$100M", 100e6),
		numFact("f2", "Acme", "revenue", "$100M", 100e6),
	}
	res := Detect(facts, DefaultTolerance())
	if res.TotalConflicts != 0 {
		t.Errorf("Identical values should not conflict: %+v", res.Conflicts)
	}
}

func TestGroupingIsolation(t *testing.T) {
	facts := []types.Fact{
		numFact("f1", "Acme", "revenue", "", 100),
		numFact("f2", "Acme", "headcount", "", 500),
		numFact("f3", "Globex", "revenue", "", 40),
	}
	res := Detect(facts, DefaultTolerance())
	if res.TotalConflicts != 0 {
		t.Errorf("Cross-group facts should never pair: %+v", res.Conflicts)
	}
}

func TestTemporalConflicts(t *testing.T) {
	differ := []types.Fact{
		dateFact("f1", "GPT-5", "release", "March 2023"),
		dateFact("f2", "GPT-5", "release", "June 2024"),
	}
	res := Detect(differ, DefaultTolerance())
	if res.TotalConflicts != 1 {
		t.Fatalf("Expected 1 temporal conflict, got %d", res.TotalConflicts)
	}
	c := res.Conflicts[0]
	if c.ConflictType != "temporal" || c.Severity != "moderate" {
		t.Errorf("Temporal conflict graded wrong: %+v", c)
	}

	sameYear := []types.Fact{
		dateFact("f1", "GPT-5", "release", "March 2024"),
		dateFact("f2", "GPT-5", "release", "June 2024"),
	}
	if r := Detect(sameYear, DefaultTolerance()); r.TotalConflicts != 0 {
		t.Errorf("Same-year dates should agree under same_year tolerance")
	}

	if r := Detect(differ, Tolerance{Temporal: TemporalSameDecade}); r.TotalConflicts != 0 {
		t.Errorf("2023 vs 2024 should agree under same_decade tolerance")
	}
}

func TestToleranceMovesModerateBoundary(t *testing.T) {
	facts := []types.Fact{
		numFact("f1", "AI", "growth", "", 110),
		numFact("f2", "AI", "growth", "", 100),
	}
	res := Detect(facts, Tolerance{Numerical: 0.15})
	if res.Conflicts[0].Severity != "minor" {
		t.Errorf("Ratio 0.091 under tolerance 0.15 should be minor, got %s", res.Conflicts[0].Severity)
	}
	// Critical stays pinned at 0.20 regardless of tolerance.
	wide := []types.Fact{
		numFact("f1", "AI", "growth", "", 150),
		numFact("f2", "AI", "growth", "", 100),
	}
	res = Detect(wide, Tolerance{Numerical: 0.5})
	if res.Conflicts[0].Severity != "critical" {
		t.Errorf("Ratio 0.333 should stay critical, got %s", res.Conflicts[0].Severity)
	}
}

func TestSymmetry(t *testing.T) {
	facts := []types.Fact{
		numFact("f1", "AI", "market size", "", 150e9),
		numFact("f2", "AI", "market size", "", 100e9),
	}
	reversed := []types.Fact{facts[1], facts[0]}

	a := Detect(facts, DefaultTolerance())
	b := Detect(reversed, DefaultTolerance())
	if a.TotalConflicts != 1 || b.TotalConflicts != 1 {
		t.Fatalf("Expected 1 conflict each way, got %d and %d", a.TotalConflicts, b.TotalConflicts)
	}
	if *a.Conflicts[0].DifferencePct != *b.Conflicts[0].DifferencePct {
		t.Errorf("Difference not symmetric: %.1f vs %.1f",
			*a.Conflicts[0].DifferencePct, *b.Conflicts[0].DifferencePct)
	}
	if a.Conflicts[0].Severity != b.Conflicts[0].Severity {
		t.Errorf("Severity not symmetric")
	}
}

func TestEmptyInput(t *testing.T) {
	res := Detect(nil, DefaultTolerance())
	if res.TotalConflicts != 0 || res.Conflicts == nil || len(res.Conflicts) != 0 {
		t.Errorf("Empty input should yield an empty result, got %+v", res)
	}
}

func TestSeveritySummary(t *testing.T) {
	facts := []types.Fact{
		numFact("f1", "AI", "size", "", 100),
		numFact("f2", "AI", "size", "", 150),
		numFact("f3", "AI", "size", "", 102),
	}
	res := Detect(facts, DefaultTolerance())
	// Pairs: (100,150) critical, (100,102) minor, (150,102) critical.
	if res.TotalConflicts != 3 {
		t.Fatalf("Expected 3 conflicts, got %d", res.TotalConflicts)
	}
	if res.SeveritySummary["critical"] != 2 || res.SeveritySummary["minor"] != 1 {
		t.Errorf("Summary = %v, want critical:2 minor:1", res.SeveritySummary)
	}
}
