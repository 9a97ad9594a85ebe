package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/logging"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
)

// SlotExtractor pulls raw booking slots out of guest text
type SlotExtractor interface {
	Extract(ctx context.Context, text string, today time.Time) (*model.RawSlots, error)
}

var (
	isoDatePattern    = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	monthDayPattern   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthPattern   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b`)
	monthRangePattern = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*(?:-|to|through|until)\s*(\d{1,2})(?:st|nd|rd|th)?\b`)
	nightsPattern     = regexp.MustCompile(`(?i)\b(\d{1,2}|one|two|three|four|five|six|seven)\s+nights?\b`)
	partyPattern      = regexp.MustCompile(`(?i)\b(\d{1,2}|one|two|three|four|five|six)\s+(?:guests?|people|persons|adults|of us)\b`)
	partyOfPattern    = regexp.MustCompile(`(?i)\bparty of\s+(\d{1,2}|one|two|three|four|five|six)\b`)
	guestNamePattern  = regexp.MustCompile(`(?:[Uu]nder(?: the name)?|[Nn]ame is|[Gg]uest(?: name)?:?|[Ff]or (?:Mr\.?|Mrs\.?|Ms\.?|Dr\.?))\s+([A-Z][\p{L}'\-]+(?:\s+[A-Z][\p{L}'\-]+){0,3})`)
)

var monthIndex = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var smallNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
}

// RuleSlotExtractor extracts slots with patterns. It is deterministic and
// needs no network.
type RuleSlotExtractor struct {
	catalog *catalog.Catalog
}

// NewRuleSlotExtractor creates a pattern-based extractor
func NewRuleSlotExtractor(c *catalog.Catalog) *RuleSlotExtractor {
	return &RuleSlotExtractor{catalog: c}
}

// Extract implements SlotExtractor
func (e *RuleSlotExtractor) Extract(_ context.Context, text string, today time.Time) (*model.RawSlots, error) {
	slots := &model.RawSlots{}

	dates := findDates(text, model.Day(today))
	if len(dates) > 0 {
		slots.CheckIn = dates[0].Format(model.DateLayout)
	}
	if len(dates) > 1 {
		slots.CheckOut = dates[1].Format(model.DateLayout)
	}

	if m := nightsPattern.FindStringSubmatch(text); m != nil {
		if n, ok := parseSmallNumber(m[1]); ok {
			slots.Nights = &n
		}
	}

	for _, p := range []*regexp.Regexp{partyPattern, partyOfPattern} {
		if m := p.FindStringSubmatch(text); m != nil {
			if n, ok := parseSmallNumber(m[1]); ok {
				slots.PartySize = &n
				break
			}
		}
	}

	// several room types mentioned stays unresolved on purpose
	if found := e.catalog.FindInText(text); len(found) > 0 {
		slots.RoomType = strings.Join(found, " or ")
	}

	if m := guestNamePattern.FindStringSubmatch(text); m != nil {
		slots.GuestName = strings.TrimSpace(m[1])
	}

	return slots, nil
}

type datedMatch struct {
	at   int
	date time.Time
}

// findDates returns explicit dates in the order they appear in text
func findDates(text string, today time.Time) []time.Time {
	var found []datedMatch

	for _, loc := range isoDatePattern.FindAllStringSubmatchIndex(text, -1) {
		y, _ := strconv.Atoi(text[loc[2]:loc[3]])
		m, _ := strconv.Atoi(text[loc[4]:loc[5]])
		d, _ := strconv.Atoi(text[loc[6]:loc[7]])
		if t, ok := makeDate(y, time.Month(m), d); ok {
			found = append(found, datedMatch{loc[0], t})
		}
	}
	for _, loc := range monthDayPattern.FindAllStringSubmatchIndex(text, -1) {
		month := monthIndex[strings.ToLower(text[loc[2]:loc[3]])]
		d, _ := strconv.Atoi(text[loc[4]:loc[5]])
		if t, ok := inferYear(month, d, today); ok {
			found = append(found, datedMatch{loc[0], t})
		}
	}
	// "June 1-3": the second day closes the range, rolling into the next month if needed
	for _, loc := range monthRangePattern.FindAllStringSubmatchIndex(text, -1) {
		month := monthIndex[strings.ToLower(text[loc[2]:loc[3]])]
		first, _ := strconv.Atoi(text[loc[4]:loc[5]])
		last, _ := strconv.Atoi(text[loc[6]:loc[7]])
		start, ok := inferYear(month, first, today)
		if !ok {
			continue
		}
		end, ok := makeDate(start.Year(), month, last)
		if ok && !end.After(start) {
			next := start.AddDate(0, 1, 1-start.Day())
			end, ok = makeDate(next.Year(), next.Month(), last)
		}
		if ok {
			found = append(found, datedMatch{loc[6], end})
		}
	}
	for _, loc := range dayMonthPattern.FindAllStringSubmatchIndex(text, -1) {
		d, _ := strconv.Atoi(text[loc[2]:loc[3]])
		month := monthIndex[strings.ToLower(text[loc[4]:loc[5]])]
		if t, ok := inferYear(month, d, today); ok {
			found = append(found, datedMatch{loc[0], t})
		}
	}

	// order of appearance
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].at < found[j-1].at; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}

	out := make([]time.Time, 0, len(found))
	for _, f := range found {
		out = append(out, f.date)
	}
	return out
}

// inferYear picks the next occurrence of month/day on or after today
func inferYear(month time.Month, day int, today time.Time) (time.Time, bool) {
	t, ok := makeDate(today.Year(), month, day)
	if !ok {
		return time.Time{}, false
	}
	if t.Before(today) {
		return makeDate(today.Year()+1, month, day)
	}
	return t, true
}

// makeDate rejects dates that time.Date would normalize, such as February 30
func makeDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func parseSmallNumber(s string) (int, bool) {
	if n, ok := smallNumbers[strings.ToLower(s)]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LLMSlotExtractor asks a language model for slots and falls back to rules
// when the model is disabled or fails.
type LLMSlotExtractor struct {
	client   AIClient
	catalog  *catalog.Catalog
	fallback SlotExtractor
	logger   *zap.Logger
}

// NewLLMSlotExtractor creates a model-backed extractor with a rule fallback
func NewLLMSlotExtractor(client AIClient, c *catalog.Catalog, logger *zap.Logger) *LLMSlotExtractor {
	return &LLMSlotExtractor{
		client:   client,
		catalog:  c,
		fallback: NewRuleSlotExtractor(c),
		logger:   logging.OrNop(logger).Named("slots"),
	}
}

// Extract implements SlotExtractor
func (e *LLMSlotExtractor) Extract(ctx context.Context, text string, today time.Time) (*model.RawSlots, error) {
	if e.client == nil || !e.client.IsEnabled() {
		return e.fallback.Extract(ctx, text, today)
	}

	slots, err := e.client.ExtractSlots(ctx, text, today, e.catalog.Names())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("model slot extraction failed, using rules", zap.Error(err))
		return e.fallback.Extract(ctx, text, today)
	}
	return slots, nil
}
