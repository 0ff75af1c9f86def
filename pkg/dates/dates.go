// Package dates normalizes the date and duration strings used in task tags.
//
// ParseDate accepts the loose forms users type into the CLI and API
// ("tomorrow", "next friday", "in 2 weeks", "by March 15") and resolves them
// to ISO 8601. DurationToMinutes understands the estimate formats found in
// task files ("2h30m", "2.5h", "45 minutes", "2d").
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeRe = regexp.MustCompile(`^in (\d+) (days?|weeks?)$`)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// ParseDate resolves a loose date expression to an ISO 8601 date (YYYY-MM-DD)
// relative to now. Returns "" if the expression cannot be parsed.
func ParseDate(s string, now time.Time) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(s) {
	case "asap", "immediately", "urgent", "now", "today":
		return today.Format("2006-01-02")
	case "tomorrow":
		return today.AddDate(0, 0, 1).Format("2006-01-02")
	}

	lower := strings.ToLower(s)
	for _, prefix := range []string{"before ", "by ", "due ", "on "} {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			lower = strings.ToLower(s)
			break
		}
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02")
	}

	// Month/day forms without a year resolve to the next occurrence.
	for _, layout := range []string{"January 2", "Jan 2", "1/2", "1-2", "January 2, 2006", "Jan 2, 2006"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
			if t.Before(today) {
				t = t.AddDate(1, 0, 0)
			}
		}
		return t.Format("2006-01-02")
	}

	isNext := strings.HasPrefix(lower, "next ")
	dayName := strings.TrimSpace(strings.TrimPrefix(lower, "next "))
	if wd, ok := weekdays[dayName]; ok {
		ahead := int(wd) - int(today.Weekday())
		if ahead <= 0 || isNext {
			ahead += 7
		}
		return today.AddDate(0, 0, ahead).Format("2006-01-02")
	}

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return today.AddDate(0, 0, n).Format("2006-01-02")
	}

	return ""
}

var (
	daysRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:d|days?)`)
	hoursRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:h|hours?)`)
	minutesRe = regexp.MustCompile(`(\d+)\s*(?:m|mins?|minutes?)`)
)

// DurationToMinutes parses an estimate string into total minutes.
// Returns 0 if nothing parseable is found.
func DurationToMinutes(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	total := 0
	if m := daysRe.FindStringSubmatch(s); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		total += int(f * 24 * 60)
	}
	if m := hoursRe.FindStringSubmatch(s); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		total += int(f * 60)
	}
	if m := minutesRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n
	}
	return total
}

// MinutesToDuration renders minutes as a compact duration ("2h30m", "3d").
// Returns "" for zero.
func MinutesToDuration(total int) string {
	if total <= 0 {
		return ""
	}
	days := total / (24 * 60)
	rem := total % (24 * 60)
	hours := rem / 60
	mins := rem % 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", hours)
	}
	if mins > 0 {
		fmt.Fprintf(&b, "%dm", mins)
	}
	return b.String()
}

// NormalizeDuration re-renders a duration in the compact canonical form,
// e.g. "2 hours 30 minutes" → "2h30m". Returns "" if unparseable.
func NormalizeDuration(s string) string {
	return MinutesToDuration(DurationToMinutes(s))
}
