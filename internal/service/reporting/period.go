package reporting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/service/dashboard"
)

const (
	dateLayout  = "2006-01-02"
	labelLayout = "02/01/2006"
)

// ErrInvalidPeriod is returned for unknown period names, unparsable dates and
// custom ranges whose start is after their end.
var ErrInvalidPeriod = errors.New("invalid report period")

// Range is a resolved report window; both bounds are inclusive.
type Range struct {
	Period string
	Label  string
	From   time.Time
	To     time.Time
}

// Contains reports whether t lies within the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// ResolvePeriod turns a period name and optional YYYY-MM-DD bounds into a
// range in now's location. An empty name means today. A custom period with a
// missing bound falls back to today.
func ResolvePeriod(period, from, to string, now time.Time) (Range, error) {
	today := dashboard.StartOfDay(now)
	endOfToday := endOfDay(today)

	switch strings.TrimSpace(period) {
	case "", models.PeriodToday:
		return Range{Period: models.PeriodToday, Label: "Oggi", From: today, To: endOfToday}, nil
	case models.Period7Days:
		return Range{Period: models.Period7Days, Label: "Ultimi 7 giorni", From: today.AddDate(0, 0, -7), To: endOfToday}, nil
	case models.Period30Days:
		return Range{Period: models.Period30Days, Label: "Ultimi 30 giorni", From: today.AddDate(0, 0, -30), To: endOfToday}, nil
	case models.PeriodCustom:
		if from == "" || to == "" {
			return Range{Period: models.PeriodCustom, Label: customLabel(today, endOfToday), From: today, To: endOfToday}, nil
		}
		start, err := time.ParseInLocation(dateLayout, from, now.Location())
		if err != nil {
			return Range{}, fmt.Errorf("%w: from %q", ErrInvalidPeriod, from)
		}
		end, err := time.ParseInLocation(dateLayout, to, now.Location())
		if err != nil {
			return Range{}, fmt.Errorf("%w: to %q", ErrInvalidPeriod, to)
		}
		if start.After(end) {
			return Range{}, fmt.Errorf("%w: from %s is after to %s", ErrInvalidPeriod, from, to)
		}
		return Range{Period: models.PeriodCustom, Label: customLabel(start, end), From: start, To: endOfDay(end)}, nil
	default:
		return Range{}, fmt.Errorf("%w: unknown period %q", ErrInvalidPeriod, period)
	}
}

func endOfDay(day time.Time) time.Time {
	return dashboard.StartOfDay(day).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func customLabel(from, to time.Time) string {
	return from.Format(labelLayout) + " - " + to.Format(labelLayout)
}
