package engine

import (
	"fmt"
	"time"
)

// SessionSpec describes the daily trading window. Start is the offset from local midnight.
type SessionSpec struct {
	Start    time.Duration
	Duration time.Duration
	Location *time.Location
}

// Session is one day's slice of bars, [Start, End] inclusive
type Session struct {
	ID    string
	Date  time.Time
	Start time.Time
	End   time.Time
	Bars  []Bar
}

func (s SessionSpec) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Validate checks the window fits in one day
func (s SessionSpec) Validate() error {
	if s.Duration <= 0 || s.Duration > 24*time.Hour {
		return fmt.Errorf("%w: got %s", ErrInvalidSession, s.Duration)
	}
	if s.Start < 0 || s.Start >= 24*time.Hour {
		return fmt.Errorf("%w: start offset %s", ErrInvalidSession, s.Start)
	}
	return nil
}

// Window returns the session bounds for the calendar day containing day. Start is
// read as a wall clock time, so it does not move on DST change days.
func (s SessionSpec) Window(day time.Time) (start, end time.Time) {
	loc := s.location()
	d := day.In(loc)
	h := int(s.Start / time.Hour)
	m := int(s.Start % time.Hour / time.Minute)
	sec := int(s.Start % time.Minute / time.Second)
	start = time.Date(d.Year(), d.Month(), d.Day(), h, m, sec, int(s.Start%time.Second), loc)
	return start, start.Add(s.Duration)
}

// sessionDay returns the calendar day whose window holds t, checking the previous day first
func (s SessionSpec) sessionDay(t time.Time) (time.Time, bool) {
	local := t.In(s.location())
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location())
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		start, end := s.Window(day)
		if !t.Before(start) && !t.After(end) {
			return day, true
		}
	}
	return time.Time{}, false
}

// Contains reports whether t falls inside any session window
func (s SessionSpec) Contains(t time.Time) bool {
	_, ok := s.sessionDay(t)
	return ok
}

// Split slices a sorted single-symbol bar series into ordered sessions.
// Days without bars in their window produce no session.
func Split(bars []Bar, spec SessionSpec) ([]Session, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Before(bars[i-1].Timestamp) {
			return nil, &OrderingError{What: "bars", Index: i, Prev: bars[i-1].Timestamp, Curr: bars[i].Timestamp}
		}
		if bars[i].Symbol != bars[0].Symbol {
			return nil, fmt.Errorf("%w: %q and %q", ErrMixedSymbols, bars[0].Symbol, bars[i].Symbol)
		}
	}

	var sessions []Session
	for i, b := range bars {
		day, ok := spec.sessionDay(b.Timestamp)
		if !ok {
			continue
		}
		n := len(sessions)
		if n == 0 || !sessions[n-1].Date.Equal(day) {
			start, end := spec.Window(day)
			sessions = append(sessions, Session{
				ID:    sessionID(b.Symbol, day),
				Date:  day,
				Start: start,
				End:   end,
			})
			n++
		}
		sessions[n-1].Bars = append(sessions[n-1].Bars, bars[i])
	}
	return sessions, nil
}

func sessionID(symbol string, day time.Time) string {
	if symbol == "" {
		return day.Format("2006-01-02")
	}
	return symbol + "-" + day.Format("2006-01-02")
}
