package fleet

import (
	"fmt"
	"time"
)

// Period is one daily activation window in local civil time.
// When End < Start the window wraps midnight; Start == End is empty.
type Period struct {
	StartHour   int `json:"start_hour"`
	StartMinute int `json:"start_minute"`
	EndHour     int `json:"end_hour"`
	EndMinute   int `json:"end_minute"`
}

// Validate checks the period's fields are in range.
func (p Period) Validate() error {
	if p.StartHour < 0 || p.StartHour > 23 || p.EndHour < 0 || p.EndHour > 23 {
		return fmt.Errorf("hour out of range in period %s", p)
	}
	if p.StartMinute < 0 || p.StartMinute > 59 || p.EndMinute < 0 || p.EndMinute > 59 {
		return fmt.Errorf("minute out of range in period %s", p)
	}
	return nil
}

// String renders the period as "HH:MM-HH:MM".
func (p Period) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", p.StartHour, p.StartMinute, p.EndHour, p.EndMinute)
}

// start and end as minutes of the day.
func (p Period) start() int { return p.StartHour*60 + p.StartMinute }
func (p Period) end() int   { return p.EndHour*60 + p.EndMinute }

// ContainsMinute reports whether the minute-of-day lies inside the
// period. Membership is half-open: the start minute is in, the end
// minute is out. An overnight period (end < start) wraps midnight.
func (p Period) ContainsMinute(minute int) bool {
	start, end := p.start(), p.end()
	switch {
	case end > start:
		return minute >= start && minute < end
	case end < start:
		return minute >= start || minute < end
	default:
		return false
	}
}

// Schedule is a named set of daily activation periods.
type Schedule struct {
	Name    string   `json:"name"`
	Periods []Period `json:"periods"`
}

// Contains reports whether t falls inside any of the schedule's periods.
// Only the local wall-clock hour and minute of t are considered.
func (s *Schedule) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	for _, p := range s.Periods {
		if p.ContainsMinute(minute) {
			return true
		}
	}
	return false
}

// Validate checks every period of the schedule.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	for _, p := range s.Periods {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
