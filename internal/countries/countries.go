package countries

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed countries.yaml
var defaultData []byte

var ErrUnknownCountry = errors.New("unknown country code")

// Levels maps geoBoundaries ADM levels to OSM admin_level values.
type Levels struct {
	ADM1 int `yaml:"adm1"`
	ADM2 int `yaml:"adm2"`
}

// Country is one supported country.
type Country struct {
	Code           string   `yaml:"code"`
	ISO3           string   `yaml:"iso3"`
	Name           string   `yaml:"name"`
	NameJa         string   `yaml:"nameJa"`
	OverpassLevels Levels   `yaml:"overpassLevels"`
	Rules          []string `yaml:"rules"`
}

// OverpassLevel returns the OSM admin_level for an ADM level.
func (c Country) OverpassLevel(adm int) (int, bool) {
	switch adm {
	case 1:
		return c.OverpassLevels.ADM1, c.OverpassLevels.ADM1 > 0
	case 2:
		return c.OverpassLevels.ADM2, c.OverpassLevels.ADM2 > 0
	}
	return 0, false
}

type file struct {
	Countries []Country `yaml:"countries"`
}

// Registry looks countries up by ISO 3166-1 alpha-2 code, keeping file order.
type Registry struct {
	byCode map[string]Country
	codes  []string
}

// Load parses a registry from YAML.
func Load(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse countries: %w", err)
	}

	r := &Registry{byCode: make(map[string]Country, len(f.Countries))}
	for i, c := range f.Countries {
		c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
		c.ISO3 = strings.ToUpper(strings.TrimSpace(c.ISO3))
		if len(c.Code) != 2 || len(c.ISO3) != 3 {
			return nil, fmt.Errorf("country %d: invalid code %q/%q", i, c.Code, c.ISO3)
		}
		if _, dup := r.byCode[c.Code]; dup {
			return nil, fmt.Errorf("country %s: duplicate entry", c.Code)
		}
		r.byCode[c.Code] = c
		r.codes = append(r.codes, c.Code)
	}
	return r, nil
}

var defaultRegistry *Registry

func init() {
	r, err := Load(defaultData)
	if err != nil {
		panic(err)
	}
	defaultRegistry = r
}

// Default returns the embedded registry.
func Default() *Registry { return defaultRegistry }

// Lookup finds a country by alpha-2 code, case-insensitively.
func (r *Registry) Lookup(code string) (Country, error) {
	c, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Country{}, fmt.Errorf("%w: %q", ErrUnknownCountry, code)
	}
	return c, nil
}

// Codes returns every supported code in file order.
func (r *Registry) Codes() []string {
	return append([]string(nil), r.codes...)
}

// Resolve validates codes, or returns every code when all is set. Codes are
// upper-cased and de-duplicated, keeping first-seen order.
func (r *Registry) Resolve(codes []string, all bool) ([]string, error) {
	if all {
		return r.Codes(), nil
	}
	seen := make(map[string]bool, len(codes))
	var out, unknown []string
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if _, ok := r.byCode[c]; !ok {
			unknown = append(unknown, c)
			continue
		}
		out = append(out, c)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownCountry, strings.Join(unknown, ", "))
	}
	return out, nil
}
