package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/EmpoweredVote/EV-Geo/internal/areas"
	"github.com/EmpoweredVote/EV-Geo/internal/boundaries"
	"github.com/EmpoweredVote/EV-Geo/internal/countries"
	"github.com/EmpoweredVote/EV-Geo/internal/geo"
	"github.com/EmpoweredVote/EV-Geo/internal/metrics"
	"github.com/EmpoweredVote/EV-Geo/internal/progress"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/geoboundaries"
	"github.com/EmpoweredVote/EV-Geo/internal/upstream/wikipedia"
)

// Step names, in emission order.
const (
	StepBoundaryInfo = "boundary_info"
	StepDownload     = "download"
	StepMap          = "map"
	StepLink         = "link"
	StepTags         = "tags"
	StepThumbnails   = "thumbnails"
	StepUpsert       = "upsert"
)

// BoundarySource serves boundary metadata and GeoJSON downloads.
type BoundarySource interface {
	FetchBoundaryInfo(ctx context.Context, iso3 string, level int) (*geoboundaries.BoundaryInfo, error)
	DownloadGeoJSON(ctx context.Context, url string) ([]geo.Feature, error)
}

// TagSource returns tagged administrative elements for a country.
type TagSource interface {
	FetchAdminAreas(ctx context.Context, countryCode string, adminLevel int) ([]boundaries.TaggedElement, error)
}

// SummarySource resolves a wikipedia tag to a page summary.
type SummarySource interface {
	FetchSummary(ctx context.Context, tag string) (*wikipedia.Summary, error)
}

// AreaWriter persists areas.
type AreaWriter interface {
	UpsertArea(ctx context.Context, a *areas.Area) (uuid.UUID, error)
	UpsertAreasBatch(ctx context.Context, list []*areas.Area) (map[string]uuid.UUID, error)
}

// Options control one ingestion run.
type Options struct {
	WithTags       bool
	WithThumbnails bool
	// Simplified downloads the simplified geometry when available.
	Simplified bool
}

// Outcome summarises one country ingestion. Counts.Processed is the number
// of areas written; unlinked second-level regions count as skipped.
type Outcome struct {
	Counts   progress.Counts
	Adm1     int
	Adm2     int
	Unlinked int
	Err      error
}

// Ingester loads one country's boundary hierarchy into the area store.
type Ingester struct {
	boundaries BoundarySource
	tags       TagSource
	summaries  SummarySource
	writer     AreaWriter
	countries  *countries.Registry
	now        func() time.Time
}

// NewIngester creates an ingester. tags and summaries may be nil, which
// disables the matching steps. A nil registry uses the embedded default.
func NewIngester(b BoundarySource, tags TagSource, summaries SummarySource, w AreaWriter, registry *countries.Registry) *Ingester {
	if registry == nil {
		registry = countries.Default()
	}
	return &Ingester{
		boundaries: b,
		tags:       tags,
		summaries:  summaries,
		writer:     w,
		countries:  registry,
		now:        time.Now,
	}
}

// tagInfo is what the tag and thumbnail steps learn about one region.
type tagInfo struct {
	nameEn    string
	nameJa    string
	wikipedia string
	iso       string
	thumbnail string
}

// run carries the state of one country ingestion between steps.
type run struct {
	country countries.Country
	adm0    []geo.Feature
	adm1    []geo.Feature
	adm2    []geo.Feature

	countryRegion *boundaries.Region
	adm1s         []*boundaries.Adm1Region
	adm2s         []*boundaries.Adm2Region
	unlinked      []*boundaries.Adm2Region

	info map[string]*tagInfo
}

// Ingest runs every step for one country, emitting a step event per stage
// and a final completed event, or a single error event on failure.
func (in *Ingester) Ingest(ctx context.Context, countryCode string, opts Options, sink progress.Sink) (out Outcome) {
	start := in.now()
	ctx, cancel := progress.Bind(ctx, sink)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ingest] %s: panic: %v", countryCode, r)
			out.Err = fmt.Errorf("ingest %s: panic: %v", countryCode, r)
			if !progress.Closed(sink) {
				_ = sink.Send(context.WithoutCancel(ctx), progress.Error{Message: out.Err.Error()})
			}
		}
	}()

	fail := func(err error) Outcome {
		out.Err = err
		if !errors.Is(err, progress.ErrClosed) && !progress.Closed(sink) {
			log.Printf("[ingest] %s: %v", countryCode, err)
			_ = sink.Send(context.WithoutCancel(ctx), progress.Error{Message: err.Error()})
		}
		return out
	}

	country, err := in.countries.Lookup(countryCode)
	if err != nil {
		return fail(err)
	}
	r := &run{country: country, info: make(map[string]*tagInfo)}

	step := func(name, msg string, count int) error {
		log.Printf("[ingest] %s: %s: %s", country.Code, name, msg)
		return sink.Send(ctx, progress.Step{Name: name, Message: msg, Count: count})
	}

	urls, err := in.boundaryInfo(ctx, r, opts.Simplified)
	if err != nil {
		return fail(err)
	}
	if err := step(StepBoundaryInfo, "resolved download urls for "+country.ISO3, len(urls)); err != nil {
		return fail(err)
	}

	if err := in.download(ctx, r, urls); err != nil {
		return fail(err)
	}
	if err := step(StepDownload, fmt.Sprintf("downloaded %d/%d/%d shapes", len(r.adm0), len(r.adm1), len(r.adm2)), len(r.adm0)+len(r.adm1)+len(r.adm2)); err != nil {
		return fail(err)
	}

	mapRegions(r)
	if len(r.adm1s) == 0 {
		return fail(fmt.Errorf("ingest %s: no usable ADM1 shapes", country.Code))
	}
	if err := step(StepMap, fmt.Sprintf("mapped %d ADM1 and %d ADM2 regions", len(r.adm1s), len(r.adm2s)), len(r.adm1s)+len(r.adm2s)); err != nil {
		return fail(err)
	}

	r.unlinked = boundaries.LinkChildren(r.adm1s, r.adm2s)
	if n := len(r.unlinked); n > 0 {
		metrics.RegionsUnlinked.WithLabelValues(country.Code).Add(float64(n))
	}
	if err := step(StepLink, fmt.Sprintf("linked %d ADM2 regions, %d unlinked", len(r.adm2s)-len(r.unlinked), len(r.unlinked)), len(r.unlinked)); err != nil {
		return fail(err)
	}

	if opts.WithTags && in.tags != nil {
		msg, n := in.matchTags(ctx, r)
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := step(StepTags, msg, n); err != nil {
			return fail(err)
		}
	}

	if opts.WithThumbnails && in.summaries != nil {
		n := in.fetchThumbnails(ctx, r)
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := step(StepThumbnails, fmt.Sprintf("resolved %d thumbnails", n), n); err != nil {
			return fail(err)
		}
	}

	written, err := in.upsert(ctx, r)
	if err != nil {
		return fail(err)
	}
	if err := step(StepUpsert, fmt.Sprintf("upserted %d areas", written), written); err != nil {
		return fail(err)
	}

	out.Adm1 = len(r.adm1s)
	out.Adm2 = len(r.adm2s) - len(r.unlinked)
	out.Unlinked = len(r.unlinked)
	out.Counts = progress.Counts{Processed: written, Applied: written, Skipped: len(r.unlinked)}

	if err := sink.Send(ctx, progress.Completed{Counts: out.Counts, ElapsedMs: in.now().Sub(start).Milliseconds()}); err != nil {
		return fail(err)
	}
	return out
}

// boundaryInfo resolves download URLs for ADM0, ADM1 and ADM2.
func (in *Ingester) boundaryInfo(ctx context.Context, r *run, simplified bool) ([]string, error) {
	urls := make([]string, 3)
	for level := 0; level <= 2; level++ {
		info, err := in.boundaries.FetchBoundaryInfo(ctx, r.country.ISO3, level)
		if err != nil {
			return nil, fmt.Errorf("boundary info ADM%d: %w", level, err)
		}
		u := info.DownloadURL(simplified)
		if u == "" {
			return nil, fmt.Errorf("boundary info ADM%d: %w", level, geoboundaries.ErrNoDownload)
		}
		urls[level] = u
	}
	return urls, nil
}

func (in *Ingester) download(ctx context.Context, r *run, urls []string) error {
	dst := []*[]geo.Feature{&r.adm0, &r.adm1, &r.adm2}
	for level, u := range urls {
		features, err := in.boundaries.DownloadGeoJSON(ctx, u)
		if err != nil {
			return fmt.Errorf("download ADM%d: %w", level, err)
		}
		*dst[level] = features
	}
	return nil
}

func mapRegions(r *run) {
	if adm0 := boundaries.MapAdm1Regions(r.adm0); len(adm0) > 0 {
		r.countryRegion = &adm0[0].Region
	}
	r.adm1s = boundaries.MapAdm1Regions(r.adm1)
	r.adm2s = boundaries.MapAdm2Regions(r.adm2)
}

// matchTags attaches OSM tags to regions. Tag service failures are logged
// and reported in the step message; they never fail the run.
func (in *Ingester) matchTags(ctx context.Context, r *run) (string, int) {
	matched := 0
	var failures []string

	levels := []struct {
		adm     int
		regions []*boundaries.Region
	}{
		{1, boundaries.Adm1Base(r.adm1s)},
		{2, boundaries.Adm2Base(r.adm2s)},
	}
	for _, l := range levels {
		osmLevel, ok := r.country.OverpassLevel(l.adm)
		if !ok || len(l.regions) == 0 {
			continue
		}
		elements, err := in.tags.FetchAdminAreas(ctx, r.country.Code, osmLevel)
		if err != nil {
			log.Printf("[ingest] %s: tags ADM%d: %v", r.country.Code, l.adm, err)
			failures = append(failures, fmt.Sprintf("ADM%d: %v", l.adm, err))
			continue
		}
		for regionID, el := range boundaries.MatchTagQueryResults(l.regions, elements) {
			r.info[regionID] = &tagInfo{
				nameEn:    el.Tag("name:en", "int_name"),
				nameJa:    el.Tag("name:ja"),
				wikipedia: el.Tag("wikipedia"),
				iso:       el.Tag("ISO3166-2"),
			}
			matched++
		}
	}

	msg := fmt.Sprintf("matched tags for %d regions", matched)
	if len(failures) > 0 {
		msg += fmt.Sprintf(" (%d levels unavailable)", len(failures))
	}
	return msg, matched
}

// fetchThumbnails resolves thumbnails for regions with a wikipedia tag.
// Lookups are best effort and stop when ctx ends.
func (in *Ingester) fetchThumbnails(ctx context.Context, r *run) int {
	n := 0
	for id, info := range r.info {
		if info.wikipedia == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		s, err := in.summaries.FetchSummary(ctx, info.wikipedia)
		if err != nil {
			log.Printf("[ingest] %s: thumbnail %s: %v", r.country.Code, id, err)
			continue
		}
		if s != nil && s.ThumbnailURL != "" {
			info.thumbnail = s.ThumbnailURL
			n++
		}
	}
	return n
}

// upsert writes the country, then every ADM1 region, then every linked ADM2
// region with its parent's stored id.
func (in *Ingester) upsert(ctx context.Context, r *run) (int, error) {
	c := r.country
	countryArea := &areas.Area{
		AdmID:       c.ISO3,
		CountryCode: c.Code,
		Level:       0,
		Name:        c.Name,
		NameEn:      areas.StrPtr(c.Name),
		NameJa:      areas.StrPtr(c.NameJa),
		ISOCode:     areas.StrPtr(c.Code),
	}
	if r.countryRegion != nil {
		countryArea.Geometry = areas.Geometry{Polygons: r.countryRegion.Polygons}
		setCenter(countryArea, r.countryRegion.Center)
	}
	countryID, err := in.writer.UpsertArea(ctx, countryArea)
	if err != nil {
		return 0, fmt.Errorf("upsert country: %w", err)
	}
	metrics.AreasUpserted.WithLabelValues(c.Code, "0").Inc()
	written := 1

	adm1 := make([]*areas.Area, 0, len(r.adm1s))
	for _, reg := range r.adm1s {
		adm1 = append(adm1, in.toArea(r, &reg.Region, 1, &countryID))
	}
	adm1IDs, err := in.writer.UpsertAreasBatch(ctx, adm1)
	if err != nil {
		return written, fmt.Errorf("upsert ADM1: %w", err)
	}
	metrics.AreasUpserted.WithLabelValues(c.Code, "1").Add(float64(len(adm1IDs)))
	written += len(adm1IDs)

	var adm2 []*areas.Area
	for _, parent := range r.adm1s {
		pid, ok := adm1IDs[parent.ID]
		if !ok {
			continue
		}
		for _, child := range parent.Children {
			id := pid
			adm2 = append(adm2, in.toArea(r, &child.Region, 2, &id))
		}
	}
	if len(adm2) > 0 {
		adm2IDs, err := in.writer.UpsertAreasBatch(ctx, adm2)
		if err != nil {
			return written, fmt.Errorf("upsert ADM2: %w", err)
		}
		metrics.AreasUpserted.WithLabelValues(c.Code, "2").Add(float64(len(adm2IDs)))
		written += len(adm2IDs)
	}
	return written, nil
}

func (in *Ingester) toArea(r *run, reg *boundaries.Region, level int, parentID *uuid.UUID) *areas.Area {
	a := &areas.Area{
		AdmID:       reg.ID,
		CountryCode: r.country.Code,
		Level:       level,
		ParentID:    parentID,
		Name:        reg.Name,
		ISOCode:     areas.StrPtr(reg.ISOCode),
		Geometry:    areas.Geometry{Polygons: reg.Polygons},
	}
	setCenter(a, reg.Center)

	if info, ok := r.info[reg.ID]; ok {
		a.NameEn = areas.StrPtr(info.nameEn)
		a.NameJa = areas.StrPtr(info.nameJa)
		a.Wikipedia = areas.StrPtr(info.wikipedia)
		a.ThumbnailURL = areas.StrPtr(info.thumbnail)
		if a.ISOCode == nil {
			a.ISOCode = areas.StrPtr(info.iso)
		}
	}
	return a
}

func setCenter(a *areas.Area, c *geo.Coordinate) {
	if c == nil {
		return
	}
	lat, lon := c.Lat, c.Lon
	a.CenterLat = &lat
	a.CenterLon = &lon
}
