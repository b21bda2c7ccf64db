package contact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		birthday time.Time
		today    time.Time
		want     time.Time
	}{
		{
			name:     "later this year",
			birthday: date(1990, time.September, 15),
			today:    date(2026, time.August, 30),
			want:     date(2026, time.September, 15),
		},
		{
			name:     "already passed, rolls to next year",
			birthday: date(1990, time.March, 10),
			today:    date(2026, time.August, 30),
			want:     date(2027, time.March, 10),
		},
		{
			name:     "today counts as this year",
			birthday: date(1990, time.August, 30),
			today:    date(2026, time.August, 30),
			want:     date(2026, time.August, 30),
		},
		{
			name:     "feb 29 maps to mar 1 in non-leap years",
			birthday: date(1992, time.February, 29),
			today:    date(2026, time.February, 20),
			want:     date(2026, time.March, 1),
		},
		{
			name:     "feb 29 kept in leap years",
			birthday: date(1992, time.February, 29),
			today:    date(2028, time.February, 20),
			want:     date(2028, time.February, 29),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, nextOccurrence(tt.birthday, tt.today))
		})
	}
}

func TestBirthdayInWindow(t *testing.T) {
	t.Parallel()

	today := date(2026, time.August, 30)

	tests := []struct {
		name       string
		birthday   time.Time
		withinDays int
		want       bool
	}{
		{"today is included", date(1990, time.August, 30), 7, true},
		{"last day of window is included", date(1990, time.September, 6), 7, true},
		{"one day past the window", date(1990, time.September, 7), 7, false},
		{"zero-day window matches only today", date(1990, time.August, 30), 0, true},
		{"zero-day window excludes tomorrow", date(1990, time.August, 31), 0, false},
		{"window crossing into next year", date(1990, time.January, 2), 130, true},
		{"yesterday's birthday is eleven months away", date(1990, time.August, 29), 7, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, birthdayInWindow(tt.birthday, today, tt.withinDays))
		})
	}
}

func TestBirthdayInWindow_YearWrap(t *testing.T) {
	t.Parallel()

	// Late December: a window spilling into January must still match
	today := date(2026, time.December, 28)

	assert.True(t, birthdayInWindow(date(1990, time.January, 2), today, 7))
	assert.False(t, birthdayInWindow(date(1990, time.January, 5), today, 7))
}
