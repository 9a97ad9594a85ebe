// Package catalog holds the fixed description of the hotel: room types,
// their capacity and rate bounds, and the pricing policy.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/utils"
)

// RoomType describes one bookable room category
type RoomType struct {
	Name          string   `yaml:"name"`
	Aliases       []string `yaml:"aliases"`
	MaxOccupancy  int      `yaml:"max_occupancy"`
	BaseRateCents int64    `yaml:"base_rate_cents"`
	MinRateCents  int64    `yaml:"min_rate_cents"`
	MaxRateCents  int64    `yaml:"max_rate_cents"`
	Units         int      `yaml:"units"`
}

// PricingPolicy parameterizes the dynamic pricing function
type PricingPolicy struct {
	OccupancySensitivity float64 `yaml:"occupancy_sensitivity"`
	WeekendFactor        float64 `yaml:"weekend_factor"`
}

// Catalog is the hotel schema description
type Catalog struct {
	Hotel     string        `yaml:"hotel"`
	Currency  string        `yaml:"currency"`
	Pricing   PricingPolicy `yaml:"pricing"`
	RoomTypes []RoomType    `yaml:"room_types"`
}

// Default mirrors the room table the hotel was first launched with
func Default() *Catalog {
	return &Catalog{
		Hotel:    "Blue Horizon Hotel",
		Currency: "USD",
		Pricing:  PricingPolicy{OccupancySensitivity: 0.5, WeekendFactor: 1.15},
		RoomTypes: []RoomType{
			{Name: "standard", Aliases: []string{"standard room", "classic", "queen"}, MaxOccupancy: 2,
				BaseRateCents: 15000, MinRateCents: 12000, MaxRateCents: 30000, Units: 20},
			{Name: "deluxe", Aliases: []string{"deluxe king", "deluxe room", "king"}, MaxOccupancy: 3,
				BaseRateCents: 22000, MinRateCents: 18000, MaxRateCents: 45000, Units: 12},
			{Name: "ocean_suite", Aliases: []string{"ocean suite", "ocean view", "ocean view suite", "sea view"}, MaxOccupancy: 4,
				BaseRateCents: 38000, MinRateCents: 30000, MaxRateCents: 76000, Units: 6},
			{Name: "executive_suite", Aliases: []string{"executive suite", "executive", "suite"}, MaxOccupancy: 4,
				BaseRateCents: 45000, MinRateCents: 36000, MaxRateCents: 90000, Units: 4},
			{Name: "penthouse", Aliases: []string{"penthouse suite"}, MaxOccupancy: 6,
				BaseRateCents: 120000, MinRateCents: 100000, MaxRateCents: 240000, Units: 1},
		},
	}
}

// Load reads a YAML catalog from path
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every room type is internally consistent
func (c *Catalog) Validate() error {
	if c.Currency == "" {
		return fmt.Errorf("catalog: currency is required")
	}
	if len(c.RoomTypes) == 0 {
		return fmt.Errorf("catalog: no room types")
	}
	seen := make(map[string]bool)
	for _, rt := range c.RoomTypes {
		switch {
		case rt.Name == "":
			return fmt.Errorf("catalog: room type without name")
		case seen[rt.Name]:
			return fmt.Errorf("catalog: duplicate room type %q", rt.Name)
		case rt.MaxOccupancy < 1:
			return fmt.Errorf("catalog: %s: max_occupancy must be >= 1", rt.Name)
		case rt.Units < 0:
			return fmt.Errorf("catalog: %s: units must be >= 0", rt.Name)
		case rt.MinRateCents > rt.BaseRateCents || rt.BaseRateCents > rt.MaxRateCents:
			return fmt.Errorf("catalog: %s: rates must satisfy min <= base <= max", rt.Name)
		}
		seen[rt.Name] = true
	}
	return nil
}

// RoomType returns the room type with the given canonical name
func (c *Catalog) RoomType(name string) (RoomType, bool) {
	for _, rt := range c.RoomTypes {
		if rt.Name == name {
			return rt, true
		}
	}
	return RoomType{}, false
}

// Names lists canonical room type names in catalog order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.RoomTypes))
	for i, rt := range c.RoomTypes {
		names[i] = rt.Name
	}
	return names
}

// MaxCapacity is the largest max_occupancy of any room type
func (c *Catalog) MaxCapacity() int {
	max := 0
	for _, rt := range c.RoomTypes {
		if rt.MaxOccupancy > max {
			max = rt.MaxOccupancy
		}
	}
	return max
}

// Resolve maps a guest-supplied room type term to a canonical name.
// ok is false when nothing matches or the term is ambiguous.
func (c *Catalog) Resolve(term string) (name string, ok bool) {
	norm := utils.NormalizeTerm(term)
	if norm == "" {
		return "", false
	}
	for _, rt := range c.RoomTypes {
		if norm == utils.NormalizeTerm(rt.Name) {
			return rt.Name, true
		}
	}
	matches := c.matches(func(alias string) bool { return utils.FuzzyMatchAlias(norm, alias) })
	if len(matches) == 1 {
		return matches[0], true
	}
	// several aliases matched: keep only the most specific mention
	if found := c.FindInText(norm); len(found) == 1 {
		return found[0], true
	}
	return "", false
}

// FindInText returns the room types mentioned anywhere in free text.
// When a longer alias matches ("ocean view suite"), shorter overlapping
// aliases ("suite") of other room types are ignored.
func (c *Catalog) FindInText(text string) []string {
	type hit struct {
		name  string
		alias string
	}
	var hits []hit
	for _, rt := range c.RoomTypes {
		best := ""
		for _, alias := range append([]string{rt.Name}, rt.Aliases...) {
			a := utils.NormalizeTerm(alias)
			if utils.ContainsPhrase(text, a) && len(a) > len(best) {
				best = a
			}
		}
		if best != "" {
			hits = append(hits, hit{rt.Name, best})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return len(hits[i].alias) > len(hits[j].alias) })

	var out []string
	var taken []string
	for _, h := range hits {
		shadowed := false
		for _, t := range taken {
			if strings.Contains(t, h.alias) {
				shadowed = true
				break
			}
		}
		if shadowed {
			continue
		}
		taken = append(taken, h.alias)
		out = append(out, h.name)
	}
	return out
}

func (c *Catalog) matches(fn func(alias string) bool) []string {
	var out []string
	for _, rt := range c.RoomTypes {
		for _, alias := range append([]string{rt.Name}, rt.Aliases...) {
			if fn(alias) {
				out = append(out, rt.Name)
				break
			}
		}
	}
	return out
}

// DisplayName renders a room type name for guests, e.g. "ocean_suite" as "Ocean Suite"
func DisplayName(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
