package market

import (
	"fmt"
	"strings"
	"time"
)

// HolidayCalendar answers whether the exchange is closed on a date.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// Holidays is a static set of closed dates keyed by YYYY-MM-DD.
type Holidays map[string]struct{}

// NewHolidays parses YYYY-MM-DD dates into a Holidays set.
func NewHolidays(dates ...string) (Holidays, error) {
	h := make(Holidays, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return nil, NewConfigError("session.holidays", fmt.Sprintf("invalid date %q", d))
		}
		h[d] = struct{}{}
	}
	return h, nil
}

func (h Holidays) IsHoliday(date time.Time) bool {
	if h == nil {
		return false
	}
	_, ok := h[date.Format(time.DateOnly)]
	return ok
}

// Session is the regular trading window of an equity exchange.
type Session struct {
	Location *time.Location
	// Open and Close are offsets from local midnight.
	Open     time.Duration
	Close    time.Duration
	Calendar HolidayCalendar
}

// DefaultSession is the US regular session, 09:30-16:00 America/New_York.
func DefaultSession() Session {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return Session{
		Location: loc,
		Open:     9*time.Hour + 30*time.Minute,
		Close:    16 * time.Hour,
	}
}

// ParseClock converts "HH:MM" to an offset from midnight.
func ParseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, NewConfigError("session", fmt.Sprintf("invalid clock %q", v))
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (s Session) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// TradingDay reports whether date is a weekday that is not a holiday.
func (s Session) TradingDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if s.Calendar != nil && s.Calendar.IsHoliday(date) {
		return false
	}
	return true
}

// window returns the session bounds on the local day containing t.
func (s Session) window(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return midnight.Add(s.Open), midnight.Add(s.Close)
}

// InSession reports whether an intraday bar opening at ts with width step
// overlaps the regular session.
func (s Session) InSession(ts time.Time, step time.Duration) bool {
	local := ts.In(s.location())
	if !s.TradingDay(local) {
		return false
	}
	open, closeAt := s.window(local)
	return local.Before(closeAt) && local.Add(step).After(open)
}

// FilterSession drops equity bars outside the regular session. Crypto trades
// around the clock and passes through. Daily bars carry no time of day and
// are kept; providers only emit them for trading days.
func FilterSession(candles []Candle, class AssetClass, s Session) []Candle {
	if class != AssetEquity || len(candles) == 0 {
		return candles
	}
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Timeframe.IsIntraday() && !s.InSession(c.Timestamp, c.Timeframe.Interval()) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// HasTradingTime reports whether gap contains any bar that could exist for
// an equity. Gaps spanning only nights, weekends or holidays return false.
func (s Session) HasTradingTime(gap Gap, tf Timeframe) bool {
	step := tf.Interval()
	if step <= 0 || gap.End.Before(gap.Start) {
		return false
	}
	if !tf.IsIntraday() {
		for d := gap.Start.UTC(); !d.After(gap.End); d = d.AddDate(0, 0, 1) {
			if s.TradingDay(d) {
				return true
			}
		}
		return false
	}
	loc := s.location()
	from := gap.Start.In(loc)
	to := gap.End.Add(step).In(loc)
	y, m, d := from.Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		if !s.TradingDay(day) {
			continue
		}
		open, closeAt := s.window(day)
		if from.Before(closeAt) && to.After(open) {
			return true
		}
	}
	return false
}
