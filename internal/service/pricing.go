package service

import (
	"math"
	"time"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// Pricer computes dynamic room prices. It is pure: the same snapshot always
// yields the same price.
type Pricer struct {
	catalog *catalog.Catalog
}

// NewPricer creates a pricer over the catalog's rate bounds and policy
func NewPricer(c *catalog.Catalog) *Pricer {
	return &Pricer{catalog: c}
}

// Quote prices a stay from an availability snapshot
func (p *Pricer) Quote(roomType string, dates model.DateRange, snapshot model.AvailabilityWindow) (model.Price, error) {
	rt, ok := p.catalog.RoomType(roomType)
	if !ok {
		return model.Price{}, apperr.Rejected("pricing.quote", "unknown room type %q", roomType)
	}
	if !dates.Valid() {
		return model.Price{}, apperr.Rejected("pricing.quote", "empty stay %s", dates)
	}

	byDate := make(map[time.Time]model.NightInventory, len(snapshot.Nights))
	for _, n := range snapshot.Nights {
		byDate[model.Day(n.Date)] = n
	}

	price := model.Price{RoomType: roomType, Currency: p.catalog.Currency}
	for _, d := range dates.Dates() {
		night, ok := byDate[d]
		if !ok {
			return model.Price{}, apperr.Unavailable("pricing.quote", "no inventory for "+d.Format(model.DateLayout))
		}
		cents := p.nightlyRate(rt, night)
		price.Nightly = append(price.Nightly, model.NightlyRate{Date: d, Cents: cents})
		price.TotalCents += cents
	}
	return price, nil
}

// nightlyRate = base * (1 + sensitivity * occupancy) * weekend factor, clamped to [min, max]
func (p *Pricer) nightlyRate(rt catalog.RoomType, night model.NightInventory) int64 {
	occupancy := 1.0
	if night.Total > 0 {
		occupancy = 1 - float64(night.Remaining)/float64(night.Total)
	}

	rate := float64(rt.BaseRateCents) * (1 + p.catalog.Pricing.OccupancySensitivity*occupancy)
	if isWeekendNight(night.Date) && p.catalog.Pricing.WeekendFactor > 0 {
		rate *= p.catalog.Pricing.WeekendFactor
	}

	cents := int64(math.Round(rate))
	if cents < rt.MinRateCents {
		cents = rt.MinRateCents
	}
	if cents > rt.MaxRateCents {
		cents = rt.MaxRateCents
	}
	return cents
}

// Friday and Saturday nights carry weekend demand
func isWeekendNight(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Friday || wd == time.Saturday
}

// Drift is the relative difference of fresh against quoted
func Drift(quoted, fresh model.Price) float64 {
	if quoted.TotalCents == 0 {
		if fresh.TotalCents == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(float64(fresh.TotalCents-quoted.TotalCents)) / float64(quoted.TotalCents)
}
