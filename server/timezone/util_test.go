package timezone

import (
	"testing"
	"time"
)

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		name    string
		tz      string
		wantErr bool
	}{
		{
			name:    "UTC",
			tz:      "UTC",
			wantErr: false,
		},
		{
			name:    "empty string defaults to UTC",
			tz:      "",
			wantErr: false,
		},
		{
			name:    "Asia/Shanghai",
			tz:      "Asia/Shanghai",
			wantErr: false,
		},
		{
			name:    "invalid timezone",
			tz:      "Invalid/Timezone",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseTimezone(tt.tz)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimezone() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if loc == nil {
				t.Errorf("ParseTimezone() returned nil location")
			}
			if IsValidTimezone(tt.tz) == tt.wantErr {
				t.Errorf("IsValidTimezone(%q) disagrees with ParseTimezone", tt.tz)
			}
		})
	}
}

func TestStartOfDay(t *testing.T) {
	// 2025-01-21 14:30:00 UTC
	testTime := time.Date(2025, 1, 21, 14, 30, 0, 0, time.UTC)

	loc, _ := ParseTimezone("Asia/Shanghai")
	got := StartOfDay(testTime, loc)

	// 2025-01-21 00:00:00 Asia/Shanghai is 2025-01-20 16:00:00 UTC
	want := time.Date(2025, 1, 20, 16, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("StartOfDay() = %v, want %v", got, want)
	}
}

func TestDaysBetween(t *testing.T) {
	shanghai, _ := ParseTimezone("Asia/Shanghai")
	newYork, _ := ParseTimezone("America/New_York")

	tests := []struct {
		name string
		from time.Time
		to   time.Time
		tz   *time.Location
		want int
	}{
		{
			name: "same day",
			from: time.Date(2025, 1, 21, 1, 0, 0, 0, time.UTC),
			to:   time.Date(2025, 1, 21, 23, 0, 0, 0, time.UTC),
			tz:   time.UTC,
			want: 0,
		},
		{
			name: "one minute across midnight",
			from: time.Date(2025, 1, 21, 23, 59, 0, 0, time.UTC),
			to:   time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC),
			tz:   time.UTC,
			want: 1,
		},
		{
			name: "same UTC day is next local day",
			from: time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC),
			to:   time.Date(2025, 1, 21, 17, 0, 0, 0, time.UTC),
			tz:   shanghai,
			want: 1,
		},
		{
			name: "earlier day is negative",
			from: time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC),
			to:   time.Date(2025, 1, 18, 10, 0, 0, 0, time.UTC),
			tz:   time.UTC,
			want: -3,
		},
		{
			name: "across DST start",
			from: time.Date(2025, 3, 8, 12, 0, 0, 0, newYork),
			to:   time.Date(2025, 3, 10, 0, 30, 0, 0, newYork),
			tz:   newYork,
			want: 2,
		},
		{
			name: "nil location is UTC",
			from: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			to:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			tz:   nil,
			want: 364,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.from, tt.to, tt.tz); got != tt.want {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDayKey(t *testing.T) {
	loc, _ := ParseTimezone("Asia/Shanghai")
	ts := time.Date(2025, 1, 21, 20, 0, 0, 0, time.UTC).Unix()

	if got := DayKey(ts, time.UTC); got != "2025-01-21" {
		t.Errorf("DayKey(UTC) = %v", got)
	}
	if got := DayKey(ts, loc); got != "2025-01-22" {
		t.Errorf("DayKey(Shanghai) = %v", got)
	}
}
