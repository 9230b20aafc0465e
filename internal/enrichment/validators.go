package enrichment

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/EmpoweredVote/EV-Geo/internal/upstream/gemini"
)

// Validator checks a medium-confidence result for one country.
type Validator func(area MissingNameArea, res gemini.NameResult) bool

var validators = map[string]Validator{
	"JP": validateJP,
}

// ValidatorFor returns the country's validator. Countries without one
// accept every medium-confidence result.
func ValidatorFor(countryCode string) Validator {
	if v, ok := validators[strings.ToUpper(countryCode)]; ok {
		return v
	}
	return acceptAll
}

func acceptAll(MissingNameArea, gemini.NameResult) bool { return true }

var jpSuffixes = map[int][]string{
	1: {"都", "道", "府", "県"},
	2: {"市", "町", "村", "区", "郡"},
}

// validateJP requires the Japanese name to carry the suffix of its level:
// prefectures end in 都道府県, municipalities in 市町村区郡.
func validateJP(area MissingNameArea, res gemini.NameResult) bool {
	suffixes, ok := jpSuffixes[area.Level]
	if !ok {
		return true
	}
	name := strings.TrimSpace(norm.NFKC.String(res.NameJa))
	if name == "" {
		return false
	}
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
