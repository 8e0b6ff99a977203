package market

import (
	"testing"
	"time"
)

func TestTimeframeOrdering(t *testing.T) {
	if !Monthly.HigherThan(Weekly) {
		t.Error("Monthly must be higher than weekly")
	}
	if !H4.HigherThan(M1) {
		t.Error("H4 must be higher than M1")
	}
	if H1.HigherThan(H1) {
		t.Error("A timeframe is not higher than itself")
	}
	if M15.HigherThan(Daily) {
		t.Error("M15 must not be higher than daily")
	}
}

func TestParseTimeframe(t *testing.T) {
	for _, name := range []string{"MN1", "W1", "D1", "H4", "H1", "M15", "M5", "M1"} {
		tf, err := ParseTimeframe(name)
		if err != nil {
			t.Fatalf("ParseTimeframe(%s) failed: %v", name, err)
		}
		if tf.String() != name {
			t.Errorf("Round trip broke: %s parsed to %s", name, tf)
		}
	}

	if _, err := ParseTimeframe("H2"); err == nil {
		t.Error("Expected an error for an unknown timeframe")
	}
}

func TestNextOpen(t *testing.T) {
	cases := []struct {
		tf   Timeframe
		open time.Time
		want time.Time
	}{
		// Monthly rolls on the first of the next month; December wraps the year.
		{Monthly, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{Monthly, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},

		// Weekly candles open Monday 00:00. 2025-03-03 is a Monday.
		{Weekly, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{Weekly, time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},

		{Daily, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)},

		// H4 blocks start at 0, 4, 8, 12, 16, 20; the 20:00 bar closes into the
		// next day.
		{H4, time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC), time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)},
		{H4, time.Date(2025, 3, 3, 20, 0, 0, 0, time.UTC), time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)},

		{H1, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)},
		{M15, time.Date(2025, 3, 3, 9, 45, 0, 0, time.UTC), time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)},
		{M5, time.Date(2025, 3, 3, 9, 55, 0, 0, time.UTC), time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)},
		{M1, time.Date(2025, 3, 3, 9, 59, 0, 0, time.UTC), time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		if got := tc.tf.NextOpen(tc.open); !got.Equal(tc.want) {
			t.Errorf("%s.NextOpen(%v): expected %v, got %v", tc.tf, tc.open, tc.want, got)
		}
	}
}

func TestIsCandleClosed(t *testing.T) {
	open := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	// Mid-bar the candle is still forming.
	if H1.IsCandleClosed(open, open.Add(30*time.Minute)) {
		t.Error("Candle must not be closed mid-bar")
	}

	// The instant the next bar opens, the previous one is closed.
	if !H1.IsCandleClosed(open, open.Add(time.Hour)) {
		t.Error("Candle must be closed exactly at the next open")
	}
	if !H1.IsCandleClosed(open, open.Add(2*time.Hour)) {
		t.Error("Candle must stay closed after the next open")
	}
}
