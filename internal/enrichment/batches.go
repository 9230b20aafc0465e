package enrichment

import (
	"github.com/google/uuid"

	"github.com/EmpoweredVote/EV-Geo/internal/areas"
)

// MissingNameArea is an area lacking at least one localized name, with its
// parent's name resolved for context.
type MissingNameArea struct {
	ID          uuid.UUID
	AdmID       string
	CountryCode string
	Level       int
	Name        string
	NameEn      *string
	NameJa      *string
	ParentName  string
}

func fromArea(a areas.Area, parentName string) MissingNameArea {
	return MissingNameArea{
		ID:          a.ID,
		AdmID:       a.AdmID,
		CountryCode: a.CountryCode,
		Level:       a.Level,
		Name:        a.Name,
		NameEn:      a.NameEn,
		NameJa:      a.NameJa,
		ParentName:  parentName,
	}
}

// planBatches groups areas by parent name in first-appearance order and
// splits every group into chunks of at most size.
func planBatches(list []MissingNameArea, size int) [][]MissingNameArea {
	if size <= 0 {
		size = DefaultBatchSize
	}

	var order []string
	groups := make(map[string][]MissingNameArea)
	for _, a := range list {
		if _, ok := groups[a.ParentName]; !ok {
			order = append(order, a.ParentName)
		}
		groups[a.ParentName] = append(groups[a.ParentName], a)
	}

	var batches [][]MissingNameArea
	for _, parent := range order {
		g := groups[parent]
		for len(g) > 0 {
			n := size
			if n > len(g) {
				n = len(g)
			}
			batches = append(batches, g[:n:n])
			g = g[n:]
		}
	}
	return batches
}

// buildUpdate queues only the names missing on the area. The result is
// empty when the area already has every name the model offered.
func buildUpdate(area MissingNameArea, nameEn, nameJa string) areas.NameUpdate {
	u := areas.NameUpdate{ID: area.ID}
	if area.NameEn == nil && nameEn != "" {
		u.NameEn = &nameEn
	}
	if area.NameJa == nil && nameJa != "" {
		u.NameJa = &nameJa
	}
	return u
}
