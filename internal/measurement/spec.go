package measurement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Spec selects what to fetch: an optional date window and abstract measurement names in request order.
type Spec struct {
	// StartDate and EndDate are YYYY-MM-DD; either may be empty for an open bound.
	StartDate    string
	EndDate      string
	Measurements []string
}

// ObservedAfter is the lower bound query value, or "" when there is no start date.
func (s Spec) ObservedAfter() string {
	if s.StartDate == "" {
		return ""
	}
	return s.StartDate + "T00:00:00Z"
}

// ObservedBefore is the upper bound query value, or "" when there is no end date.
func (s Spec) ObservedBefore() string {
	if s.EndDate == "" {
		return ""
	}
	return s.EndDate + "T23:59:59Z"
}

// Validate checks date formats, bound order, and that at least one measurement is named.
func (s Spec) Validate() error {
	if len(s.Measurements) == 0 {
		return errors.New("measurement: spec names no measurements")
	}
	for _, m := range s.Measurements {
		if strings.TrimSpace(m) == "" {
			return errors.New("measurement: empty measurement name")
		}
	}
	var start, end time.Time
	var err error
	if s.StartDate != "" {
		if start, err = time.Parse(dateLayout, s.StartDate); err != nil {
			return fmt.Errorf("measurement: start date %q: want YYYY-MM-DD", s.StartDate)
		}
	}
	if s.EndDate != "" {
		if end, err = time.Parse(dateLayout, s.EndDate); err != nil {
			return fmt.Errorf("measurement: end date %q: want YYYY-MM-DD", s.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("measurement: end date %s is before start date %s", s.EndDate, s.StartDate)
	}
	return nil
}

// ParseMeasurements splits a comma-separated list, dropping blanks.
func ParseMeasurements(list string) []string {
	var out []string
	for _, m := range strings.Split(list, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
