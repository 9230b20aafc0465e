package enrichment

import (
	"math"

	"github.com/EmpoweredVote/EV-Geo/internal/upstream/gemini"
)

// Disposition is the decision taken for one naming result.
type Disposition string

const (
	Applied   Disposition = "APPLIED"
	Validated Disposition = "VALIDATED"
	Skipped   Disposition = "SKIPPED"
	Errored   Disposition = "ERROR"
)

// Confidence thresholds.
const (
	HighConfidence   = 0.8
	MediumConfidence = 0.5
)

// Decision is a disposition with a short human-readable reason.
type Decision struct {
	Disposition Disposition
	Reason      string
}

// Persisted reports whether the result should be written.
func (d Decision) Persisted() bool {
	return d.Disposition == Applied || d.Disposition == Validated
}

// Decide maps one result to a disposition. It depends only on the
// confidence and, for medium confidence, the area's country validator.
func Decide(area MissingNameArea, res gemini.NameResult) Decision {
	c := res.Confidence
	switch {
	case math.IsNaN(c) || math.IsInf(c, 0) || c < 0 || c > 1:
		return Decision{Errored, "invalid confidence"}
	case c >= HighConfidence:
		return Decision{Applied, "high confidence"}
	case c >= MediumConfidence:
		if ValidatorFor(area.CountryCode)(area, res) {
			return Decision{Validated, "medium confidence, passed " + area.CountryCode + " validation"}
		}
		return Decision{Skipped, "medium confidence, failed " + area.CountryCode + " validation"}
	default:
		return Decision{Skipped, "low confidence"}
	}
}
