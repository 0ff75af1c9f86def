package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// A fixed Wednesday keeps the weekday arithmetic deterministic.
var wednesday = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-05-01", "2026-05-01"},
		{"today", "2026-03-04"},
		{"Today", "2026-03-04"},
		{"asap", "2026-03-04"},
		{"urgent", "2026-03-04"},
		{"tomorrow", "2026-03-05"},
		{"friday", "2026-03-06"},
		{"Wednesday", "2026-03-11"}, // same weekday means next week
		{"next friday", "2026-03-13"},
		{"in 3 days", "2026-03-07"},
		{"in 2 weeks", "2026-03-18"},
		{"by friday", "2026-03-06"},
		{"due 2026-04-01", "2026-04-01"},
		{"before tomorrow", ""}, // prefixes only apply to concrete dates
		{"March 15", "2026-03-15"},
		{"Jan 2", "2027-01-02"}, // already past, rolls to next year
		{"January 2, 2026", "2026-01-02"},
		{"", ""},
		{"someday", ""},
		{"2026-13-45", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDate(tt.in, wednesday))
		})
	}
}

func TestDurationToMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2h30m", 150},
		{"2.5h", 150},
		{"45 minutes", 45},
		{"45m", 45},
		{"1 hour", 60},
		{"2d", 2880},
		{"1d 2h 15m", 1575},
		{"", 0},
		{"soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationToMinutes(tt.in))
		})
	}
}

func TestMinutesToDuration(t *testing.T) {
	assert.Equal(t, "", MinutesToDuration(0))
	assert.Equal(t, "45m", MinutesToDuration(45))
	assert.Equal(t, "2h30m", MinutesToDuration(150))
	assert.Equal(t, "1d", MinutesToDuration(1440))
	assert.Equal(t, "1d4h5m", MinutesToDuration(1685))
}

func TestNormalizeDuration(t *testing.T) {
	assert.Equal(t, "2h30m", NormalizeDuration("2 hours 30 minutes"))
	assert.Equal(t, "2h30m", NormalizeDuration("2.5h"))
	assert.Equal(t, "", NormalizeDuration("whenever"))
}
