package cover

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"06:00", TimeOfDay{6, 0, 0}, false},
		{"07:30:15", TimeOfDay{7, 30, 15}, false},
		{" 18:00:00 ", TimeOfDay{18, 0, 0}, false},
		{"2026-03-02T22:15:00+01:00", TimeOfDay{22, 15, 0}, false},
		{"2026-03-02 05:45:00", TimeOfDay{5, 45, 0}, false},
		{"25:00", TimeOfDay{}, true},
		{"morning", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTime) {
					t.Errorf("error = %v, want ErrInvalidTime", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name string
		at   TimeOfDay
		now  time.Time
		want time.Time
	}{
		{"later today", TimeOfDay{6, 0, 0}, at(5, 0, 0), at(6, 0, 0)},
		{"exactly now rolls over", TimeOfDay{6, 0, 0}, at(6, 0, 0), at(6, 0, 0).AddDate(0, 0, 1)},
		{"earlier today rolls over", TimeOfDay{5, 0, 0}, at(22, 0, 0), at(5, 0, 0).AddDate(0, 0, 1)},
		{"midnight", TimeOfDay{}, at(23, 59, 59), at(0, 0, 0).AddDate(0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextOccurrence(tt.at, tt.now, time.UTC)
			if !got.Equal(tt.want) {
				t.Errorf("nextOccurrence() = %v, want %v", got, tt.want)
			}
			if !got.After(tt.now) {
				t.Errorf("nextOccurrence() = %v, not after %v", got, tt.now)
			}
		})
	}
}

func TestNextOccurrence_LocalZone(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	// 05:30 UTC is 06:30 local, so 06:00 local has passed.
	got := nextOccurrence(TimeOfDay{6, 0, 0}, at(5, 30, 0), berlin)
	want := time.Date(2026, time.March, 3, 5, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("nextOccurrence() = %v, want %v", got, want)
	}
}

func TestWithinWindow(t *testing.T) {
	day := [2]TimeOfDay{{6, 0, 0}, {18, 0, 0}}
	overnight := [2]TimeOfDay{{22, 0, 0}, {5, 0, 0}}

	tests := []struct {
		name   string
		window [2]TimeOfDay
		now    time.Time
		want   bool
	}{
		{"day window open bound", day, at(6, 0, 0), true},
		{"day window midday", day, at(12, 0, 0), true},
		{"day window close bound", day, at(18, 0, 0), false},
		{"day window night", day, at(2, 0, 0), false},
		{"overnight late evening", overnight, at(23, 0, 0), true},
		{"overnight early morning", overnight, at(4, 59, 59), true},
		{"overnight close bound", overnight, at(5, 0, 0), false},
		{"overnight midday", overnight, at(12, 0, 0), false},
		{"empty window", [2]TimeOfDay{{8, 0, 0}, {8, 0, 0}}, at(8, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinWindow(tt.now, time.UTC, tt.window[0], tt.window[1]); got != tt.want {
				t.Errorf("withinWindow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDue(t *testing.T) {
	due := at(6, 0, 0)
	if isDue(nil, at(7, 0, 0)) {
		t.Error("isDue(nil) = true")
	}
	if isDue(&due, at(5, 59, 59)) {
		t.Error("isDue before time = true")
	}
	if !isDue(&due, at(6, 0, 0)) {
		t.Error("isDue at time = false")
	}
}
