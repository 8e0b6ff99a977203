package market

import (
	"fmt"
	"time"
)

// Timeframe identifies a chart timeframe. The integer value doubles as the
// hierarchy rank: a lower value is a higher (coarser) timeframe, so ordering
// is a single comparison rather than a lookup-table search.
type Timeframe int

const (
	Monthly Timeframe = iota // MN1
	Weekly                   // W1
	Daily                    // D1
	H4
	H1
	M15
	M5
	M1
)

var timeframeNames = map[Timeframe]string{
	Monthly: "MN1",
	Weekly:  "W1",
	Daily:   "D1",
	H4:      "H4",
	H1:      "H1",
	M15:     "M15",
	M5:      "M5",
	M1:      "M1",
}

// String returns the broker-style timeframe name.
func (tf Timeframe) String() string {
	if name, ok := timeframeNames[tf]; ok {
		return name
	}
	return fmt.Sprintf("Timeframe(%d)", int(tf))
}

// ParseTimeframe converts a timeframe name to its Timeframe value.
func ParseTimeframe(name string) (Timeframe, error) {
	for tf, n := range timeframeNames {
		if n == name {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("unknown timeframe %q", name)
}

// HigherThan reports whether tf is a coarser timeframe than other.
func (tf Timeframe) HigherThan(other Timeframe) bool {
	return tf < other
}

// NextOpen returns the start time of the candle that follows the candle
// opening at t on this timeframe. Calendar boundaries apply for monthly,
// weekly and daily bars; intraday bars use fixed blocks.
func (tf Timeframe) NextOpen(t time.Time) time.Time {
	switch tf {
	case Monthly:
		year, month := t.Year(), t.Month()
		if month == time.December {
			return time.Date(year+1, time.January, 1, 0, 0, 0, 0, t.Location())
		}
		return time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())

	case Weekly:
		// Weeks open on Monday 00:00.
		daysUntilMonday := (8 - int(t.Weekday())) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		next := t.AddDate(0, 0, daysUntilMonday)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, t.Location())

	case Daily:
		next := t.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, t.Location())

	case H4:
		nextHour := (t.Hour()/4 + 1) * 4
		if nextHour >= 24 {
			next := t.AddDate(0, 0, 1)
			return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, t.Location())
		}
		return time.Date(t.Year(), t.Month(), t.Day(), nextHour, 0, 0, 0, t.Location())

	case H1:
		return t.Truncate(time.Hour).Add(time.Hour)

	case M15:
		return truncateMinutes(t, 15).Add(15 * time.Minute)

	case M5:
		return truncateMinutes(t, 5).Add(5 * time.Minute)

	default: // M1
		return t.Truncate(time.Minute).Add(time.Minute)
	}
}

// IsCandleClosed reports whether a candle that opened at candleTime has
// closed by now. now must come from the broker clock, not the local one.
func (tf Timeframe) IsCandleClosed(candleTime, now time.Time) bool {
	return !now.Before(tf.NextOpen(candleTime))
}

func truncateMinutes(t time.Time, block int) time.Time {
	minute := (t.Minute() / block) * block
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
}
