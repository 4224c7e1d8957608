// Package schedule provides the periodic cadence predicate that drives
// rebalancing checks in simulated calendar time.
package schedule

import (
	"time"

	"github.com/akozlov/portsim/internal/domain"
)

// Schedule fires exactly once per period as the simulation walks the
// calendar. The first check always fires and arms the next due date; after
// that it fires only when the simulated date reaches the due date, advancing
// it by the period each time.
type Schedule struct {
	kind  domain.ScheduleKind
	armed bool
	next  time.Time
}

// New creates a schedule with the given cadence.
func New(kind domain.ScheduleKind) *Schedule {
	return &Schedule{kind: kind}
}

// Kind returns the schedule cadence.
func (s *Schedule) Kind() domain.ScheduleKind {
	return s.kind
}

// IsArrived reports whether the schedule fires on date, advancing the next
// due date when it does. Dates are compared at day granularity.
func (s *Schedule) IsArrived(date time.Time) bool {
	date = domain.NormalizeDate(date)
	if !s.armed {
		s.armed = true
		s.next = date
	}
	if !s.next.Equal(date) {
		return false
	}
	s.next = s.advance(date)
	return true
}

func (s *Schedule) advance(from time.Time) time.Time {
	switch s.kind {
	case domain.ScheduleDaily:
		return from.AddDate(0, 0, 1)
	case domain.ScheduleMonthly:
		return from.AddDate(0, 1, 0)
	case domain.ScheduleSemiannual:
		return from.AddDate(0, 6, 0)
	default: // quarterly
		return from.AddDate(0, 3, 0)
	}
}
