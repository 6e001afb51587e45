// Package period derives the billing-cycle identifiers a payer may select for
// a revenue schedule. Every reference is a pure function of the recurrence and
// the reference date.
package period

import (
	"errors"
	"strconv"
	"time"

	revenuedomain "github.com/smallbiznis/levy/internal/revenue/domain"
)

var ErrUnsupportedRecurrence = errors.New("unsupported_recurrence")

const (
	yearlyWindow = 5
	weeklyWindow = 8

	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Resolve returns the ordered period references valid at asOf.
// Daily schedules have no bounded set and resolve to an empty slice.
func Resolve(recurrence revenuedomain.Recurrence, asOf time.Time) ([]string, error) {
	asOf = asOf.UTC()
	switch recurrence {
	case revenuedomain.RecurrenceYearly:
		year := asOf.Year()
		out := make([]string, 0, yearlyWindow)
		for i := 0; i < yearlyWindow; i++ {
			out = append(out, formatYear(year-i))
		}
		return out, nil
	case revenuedomain.RecurrenceMonthly:
		out := make([]string, 0, 12)
		for m := time.January; m <= time.December; m++ {
			out = append(out, time.Date(asOf.Year(), m, 1, 0, 0, 0, 0, time.UTC).Format(monthLayout))
		}
		return out, nil
	case revenuedomain.RecurrenceWeekly:
		start := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
		out := make([]string, 0, weeklyWindow)
		for i := 0; i < weeklyWindow; i++ {
			out = append(out, start.AddDate(0, 0, 7*i).Format(dateLayout))
		}
		return out, nil
	case revenuedomain.RecurrenceDaily:
		return []string{}, nil
	default:
		return nil, ErrUnsupportedRecurrence
	}
}

// Contains reports whether ref is selectable at asOf. Daily schedules accept
// any well-formed calendar date.
func Contains(recurrence revenuedomain.Recurrence, asOf time.Time, ref string) (bool, error) {
	if recurrence == revenuedomain.RecurrenceDaily {
		return IsDate(ref), nil
	}
	refs, err := Resolve(recurrence, asOf)
	if err != nil {
		return false, err
	}
	for _, candidate := range refs {
		if candidate == ref {
			return true, nil
		}
	}
	return false, nil
}

// IsDate reports whether value is a canonical YYYY-MM-DD calendar date.
func IsDate(value string) bool {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return false
	}
	return parsed.Format(dateLayout) == value
}

// ParseDate parses an as-of query value, defaulting to fallback when empty.
func ParseDate(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback.UTC(), nil
	}
	return time.Parse(dateLayout, value)
}

func formatYear(year int) string {
	s := strconv.Itoa(year)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
