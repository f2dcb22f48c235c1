// Package tradingcal answers "is this a US equity trading day" for the sync
// worker's schedule gate. It covers weekends and full-day exchange holidays;
// early-close sessions still count as trading days.
package tradingcal

import "time"

// ET is the US Eastern location used for all calendar decisions. Falls back
// to a fixed UTC-5 zone if the tz database is unavailable.
var ET = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}()

// IsWeekday returns true if t is Mon–Fri in ET.
func IsWeekday(t time.Time) bool {
	wd := t.In(ET).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not an exchange holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(ET)
	return IsWeekday(et) && !IsHoliday(et)
}

// PreviousTradingDay returns the most recent trading day strictly before t.
func PreviousTradingDay(t time.Time) time.Time {
	d := t.In(ET).AddDate(0, 0, -1)
	for i := 0; i < 10; i++ { // bounded: longest closure runs are 4 days
		if IsTradingDay(d) {
			return d
		}
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay returns the first trading day strictly after t.
func NextTradingDay(t time.Time) time.Time {
	d := t.In(ET).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return d
		}
		d = d.AddDate(0, 0, 1)
	}
	return d
}
