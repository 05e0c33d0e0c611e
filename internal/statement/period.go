package statement

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
)

// Period is a half-open reporting interval [Start, End). The zero Start of
// the "all" period covers the whole log.
type Period struct {
	Label string
	Start time.Time
	End   time.Time
	All   bool
}

var (
	yearRe    = regexp.MustCompile(`^(\d{4})$`)
	monthRe   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	quarterRe = regexp.MustCompile(`^(\d{4})-[Qq]([1-4])$`)
)

// ParsePeriod accepts "all" (or empty), "YYYY", "YYYY-MM" and "YYYY-Qn".
// Periods are evaluated in UTC. now bounds the "all" period.
func ParsePeriod(s string, now time.Time) (Period, error) {
	now = now.UTC()
	switch {
	case s == "" || s == "all":
		return Period{Label: "all", End: now, All: true}, nil

	case yearRe.MatchString(s):
		y, _ := strconv.Atoi(s)
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{Label: s, Start: start, End: start.AddDate(1, 0, 0)}, nil

	case monthRe.MatchString(s):
		m := monthRe.FindStringSubmatch(s)
		y, _ := strconv.Atoi(m[1])
		mon, _ := strconv.Atoi(m[2])
		if mon < 1 || mon > 12 {
			return Period{}, &domain.ValidationError{Message: fmt.Sprintf("invalid month in period %q", s)}
		}
		start := time.Date(y, time.Month(mon), 1, 0, 0, 0, 0, time.UTC)
		return Period{Label: s, Start: start, End: start.AddDate(0, 1, 0)}, nil

	case quarterRe.MatchString(s):
		m := quarterRe.FindStringSubmatch(s)
		y, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		start := time.Date(y, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
		return Period{Label: fmt.Sprintf("%d-Q%d", y, q), Start: start, End: start.AddDate(0, 3, 0)}, nil
	}
	return Period{}, &domain.ValidationError{Message: fmt.Sprintf("invalid period %q: expected all, YYYY, YYYY-MM or YYYY-Qn", s)}
}

// Contains reports whether t falls inside the period. The "all" period
// contains every moment.
func (p Period) Contains(t time.Time) bool {
	if p.All {
		return true
	}
	return !t.Before(p.Start) && t.Before(p.End)
}

// after reports whether t falls after the period.
func (p Period) after(t time.Time) bool {
	return !p.All && !t.Before(p.End)
}
