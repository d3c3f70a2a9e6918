package types

import "strconv"

// =============================================================================
// EXTRACTED KNOWLEDGE
// =============================================================================

// ValueType classifies a fact's value for normalization and conflict checks.
type ValueType string

const (
	ValueNumber     ValueType = "number"
	ValueCurrency   ValueType = "currency"
	ValuePercentage ValueType = "percentage"
	ValueDate       ValueType = "date"
	ValueText       ValueType = "text"
)

// Fact is an atomic extracted claim. ValueNumeric is the canonical scalar for
// numeric value types (billion scaled to 1e9, million to 1e6, percentages kept
// at percent magnitude); nil for text facts.
type Fact struct {
	FactID        string   `json:"fact_id,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	Entity        string   `json:"entity"`
	Attribute     string   `json:"attribute"`
	Value         string   `json:"value"`
	ValueType     string   `json:"value_type,omitempty"`
	ValueNumeric  *float64 `json:"value_numeric,omitempty"`
	Unit          string   `json:"unit,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
	SourceQuality string   `json:"source_quality,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

// Entity is a named thing recognized in text, deduplicated by (name, type).
type Entity struct {
	EntityID   string  `json:"entity_id,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	Name       string  `json:"name"`
	EntityType string  `json:"entity_type"`
	Evidence   string  `json:"evidence,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	CreatedAt  string  `json:"created_at,omitempty"`
}

// Relationship is a directed edge between two entities.
type Relationship struct {
	RelationshipID   string  `json:"relationship_id,omitempty"`
	SessionID        string  `json:"session_id,omitempty"`
	SourceEntity     string  `json:"source"`
	TargetEntity     string  `json:"target"`
	RelationshipType string  `json:"relationship_type"`
	Evidence         string  `json:"evidence,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	CreatedAt        string  `json:"created_at,omitempty"`
}

// Citation is one referenced source. A citation is complete when author,
// date, title, and URL are all present.
type Citation struct {
	CitationID      string `json:"citation_id,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	Claim           string `json:"claim,omitempty"`
	Author          string `json:"author,omitempty"`
	Title           string `json:"title,omitempty"`
	Source          string `json:"source,omitempty"`
	URL             string `json:"url,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"`
	QualityRating   string `json:"quality_rating,omitempty"`
	IsValid         bool   `json:"is_valid,omitempty"`
	ValidationNotes string `json:"validation_notes,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// Complete reports whether all four completeness fields are present.
func (c *Citation) Complete() bool {
	return c.Author != "" && c.PublicationDate != "" && c.Title != "" && c.URL != ""
}

// =============================================================================
// CONFLICTS
// =============================================================================

// ConflictType classifies how two facts disagree.
type ConflictType string

const (
	ConflictNumerical      ConflictType = "numerical"
	ConflictTemporal       ConflictType = "temporal"
	ConflictScope          ConflictType = "scope"
	ConflictMethodological ConflictType = "methodological"
)

// Severity grades a conflict. Minor conflicts are reported but non-blocking.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityCritical Severity = "critical"
)

// Conflict links two facts that disagree about the same (entity, attribute).
type Conflict struct {
	ConflictID    string   `json:"conflict_id,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	FactID1       string   `json:"fact_id_1,omitempty"`
	FactID2       string   `json:"fact_id_2,omitempty"`
	Entity        string   `json:"entity"`
	Attribute     string   `json:"attribute"`
	ConflictType  string   `json:"conflict_type"`
	Severity      string   `json:"severity"`
	Facts         []Fact   `json:"facts,omitempty"`
	DifferencePct *float64 `json:"difference_percent,omitempty"`
	Description   string   `json:"description,omitempty"`
	Resolved      bool     `json:"resolved"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// SourceQualityScore maps a letter rating to its 0-2 scoring weight.
func SourceQualityScore(rating string) float64 {
	switch rating {
	case "A":
		return 2.0
	case "B":
		return 1.5
	case "C":
		return 1.0
	case "D":
		return 0.5
	default:
		return 0.0
	}
}

// ValidSourceQuality reports whether rating is one of A through E.
func ValidSourceQuality(rating string) bool {
	switch rating {
	case "A", "B", "C", "D", "E":
		return true
	}
	return false
}

// NormalizeConfidence maps the accepted confidence forms to [0, 1].
// Labels High/Medium/Low become 0.9/0.6/0.3; numeric strings are parsed and
// clamped; anything else maps to 0.
func NormalizeConfidence(v any) float64 {
	switch c := v.(type) {
	case float64:
		return clamp01(c)
	case int:
		return clamp01(float64(c))
	case string:
		switch c {
		case "High", "high":
			return 0.9
		case "Medium", "medium":
			return 0.6
		case "Low", "low":
			return 0.3
		}
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			return clamp01(f)
		}
	}
	return 0
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
