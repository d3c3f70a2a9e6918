package extract

import (
	"regexp"
	"strconv"
	"strings"

	"deepresearch/internal/types"
)

// Noun phrases open with a capitalized token and run up to five more words,
// lazily, so the verb anchors the end of the phrase.
const nounPhrase = `([A-Z][\w&.'-]*(?:[ \t][\w&.'-]+){0,5}?)`

var (
	// "AI market size reached 150 billion" / "Adoption grew to 78%"
	measureRe = regexp.MustCompile(nounPhrase +
		`[ \t]+(?:is|was|has|reached|grew[ \t]+to)[ \t]+(-?\d+(?:,\d{3})*(?:\.\d+)?)(?:[ \t]*(%)|[ \t]+(billion|million|thousand)\b)?`)

	// "Acme Corp is valued at $2.5B" / "The deal was worth $300 million"
	currencyRe = regexp.MustCompile(nounPhrase +
		`[ \t]+(?:(?:is|was)[ \t]+)?(?:valued[ \t]+at|worth|is|was)[ \t]+\$[ \t]?(-?\d+(?:,\d{3})*(?:\.\d+)?)(?:[ \t]*(B|M)\b|[ \t]+(billion|million)\b)?`)
)

// factConfidence is the default for pattern-matched facts, the "Medium" label.
var factConfidence = types.NormalizeConfidence("Medium")

// Facts scans text line-wise for the measurement and currency phrase
// patterns. Scale words normalize into value_numeric (billion to 1e9,
// million to 1e6, thousand to 1e3); percentages keep percent magnitude.
func Facts(text, sourceURL string) []types.Fact {
	var facts []types.Fact
	for _, line := range strings.Split(text, "\n") {
		for _, m := range currencyRe.FindAllStringSubmatch(line, -1) {
			entity, attribute := splitPhrase(m[1])
			suffix := m[3] + m[4]
			num := parseNumber(m[2]) * scaleOf(suffix)
			facts = append(facts, types.Fact{
				Entity:       entity,
				Attribute:    attribute,
				Value:        renderCurrency(m[2], suffix),
				ValueType:    string(types.ValueCurrency),
				ValueNumeric: &num,
				Unit:         "USD",
				SourceURL:    sourceURL,
				Confidence:   factConfidence,
			})
		}
		for _, m := range measureRe.FindAllStringSubmatch(line, -1) {
			entity, attribute := splitPhrase(m[1])
			f := types.Fact{
				Entity:     entity,
				Attribute:  attribute,
				SourceURL:  sourceURL,
				Confidence: factConfidence,
			}
			num := parseNumber(m[2])
			switch {
			case m[3] == "%":
				f.ValueType = string(types.ValuePercentage)
				f.Unit = "%"
				f.Value = m[2] + "%"
			case m[4] != "":
				f.ValueType = string(types.ValueNumber)
				f.Unit = m[4]
				f.Value = m[2] + " " + m[4]
				num *= scaleOf(m[4])
			default:
				f.ValueType = string(types.ValueNumber)
				f.Value = m[2]
			}
			f.ValueNumeric = &num
			facts = append(facts, f)
		}
	}
	return facts
}

// splitPhrase separates a noun phrase into (entity, attribute): the trailing
// run of non-capitalized tokens names the attribute, the capitalized head
// names the entity. A phrase with no such tail keeps attribute "value" so
// facts about the same subject still group for conflict detection.
func splitPhrase(phrase string) (string, string) {
	tokens := strings.Fields(phrase)
	if len(tokens) > 1 {
		switch tokens[0] {
		case "The", "A", "An":
			tokens = tokens[1:]
		}
	}
	split := len(tokens)
	for split > 1 && tokens[split-1] == strings.ToLower(tokens[split-1]) {
		split--
	}
	if split == len(tokens) {
		return strings.Join(tokens, " "), "value"
	}
	return strings.Join(tokens[:split], " "), strings.Join(tokens[split:], " ")
}

func parseNumber(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return f
}

func scaleOf(suffix string) float64 {
	switch suffix {
	case "B", "billion":
		return 1e9
	case "M", "million":
		return 1e6
	case "thousand":
		return 1e3
	}
	return 1
}

func renderCurrency(number, suffix string) string {
	switch suffix {
	case "":
		return "$" + number
	case "B", "M":
		return "$" + number + suffix
	}
	return "$" + number + " " + suffix
}
