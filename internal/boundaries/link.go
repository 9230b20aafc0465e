package boundaries

import "log"

// LinkChildren attaches every ADM2 region to the first ADM1 region that
// contains its interior point. Regions are assumed not to overlap at the
// parent level, so list order decides ties. ADM2 regions with no parent are
// returned and left out of the hierarchy.
func LinkChildren(adm1s []*Adm1Region, adm2s []*Adm2Region) []*Adm2Region {
	var unmatched []*Adm2Region
	for _, child := range adm2s {
		parent := findParent(adm1s, child)
		if parent == nil {
			unmatched = append(unmatched, child)
			continue
		}
		parent.Children = append(parent.Children, child)
	}

	if len(unmatched) > 0 {
		log.Printf("[boundaries] %d of %d ADM2 regions have no containing ADM1 region", len(unmatched), len(adm2s))
		for _, r := range unmatched {
			log.Printf("[boundaries] unlinked ADM2 %s (%s) at %.5f,%.5f", r.ID, r.Name, r.InteriorPoint.Lat, r.InteriorPoint.Lon)
		}
	}
	return unmatched
}

func findParent(adm1s []*Adm1Region, child *Adm2Region) *Adm1Region {
	for _, p := range adm1s {
		if p.Contains(child.InteriorPoint) {
			return p
		}
	}
	return nil
}

// MatchTagQueryResults pairs tag query elements with regions by locating each
// element's center. The first containing region wins for an element, and a
// region that already has a match keeps it, so the result is one-to-one even
// when several elements fall inside one region.
func MatchTagQueryResults(regions []*Region, elements []TaggedElement) map[string]TaggedElement {
	matched := make(map[string]TaggedElement, len(regions))
	for _, el := range elements {
		for _, r := range regions {
			if !r.Contains(el.Center) {
				continue
			}
			if _, taken := matched[r.ID]; !taken {
				matched[r.ID] = el
			}
			break
		}
	}
	return matched
}
