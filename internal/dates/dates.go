package dates

import (
	"time"

	"github.com/pkg/errors"
)

// Filter names an aggregation window understood by the remote controllers.
type Filter string

// Supported filters
const (
	FilterMonth        Filter = "month"
	FilterDayAverage   Filter = "day-average"
	FilterMonthAverage Filter = "month-average"
)

// wireFormat is the begin/end timestamp layout the controller firmware
// expects (day month year hour minute second, no separators).
const wireFormat = "02012006150405"

// Window is a resolved date range. Period is the record bucket width in
// seconds; Hours and Days feed the distribution normalization for the
// "average" filters.
type Window struct {
	Begin  time.Time
	End    time.Time
	Period int
	Hours  int
	Days   int
}

// BeginParam formats the window start for the controller query string
func (w Window) BeginParam() string {
	return w.Begin.Format(wireFormat)
}

// EndParam formats the window end for the controller query string
func (w Window) EndParam() string {
	return w.End.Format(wireFormat)
}

// Resolver turns a named filter into a concrete window anchored to the
// controller time zone. The clock is injected so tests can pin "now".
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// NewResolver creates a resolver for the given IANA time zone
func NewResolver(timezone string, now func() time.Time) (*Resolver, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown controller timezone %q", timezone)
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{loc: loc, now: now}, nil
}

// Resolve computes the window for a filter:
//
//	month          month-to-date, daily buckets
//	day-average    the full prior day as a single bucket
//	month-average  the full prior month as a single bucket
func (r *Resolver) Resolve(filter Filter) (Window, error) {
	now := r.now().In(r.loc)

	switch filter {
	case FilterMonth:
		begin := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		return Window{
			Begin:  begin,
			End:    now,
			Period: 24 * 60 * 60,
			Hours:  24,
			Days:   now.Day(),
		}, nil

	case FilterDayAverage:
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
		return Window{
			Begin:  today.AddDate(0, 0, -1),
			End:    today,
			Period: 24 * 60 * 60,
			Hours:  24,
			Days:   1,
		}, nil

	case FilterMonthAverage:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		begin := first.AddDate(0, -1, 0)
		// day 0 of the current month is the last day of the prior one
		days := time.Date(now.Year(), now.Month(), 0, 0, 0, 0, 0, r.loc).Day()
		return Window{
			Begin:  begin,
			End:    first,
			Period: days * 24 * 60 * 60,
			Hours:  24,
			Days:   days,
		}, nil
	}

	return Window{}, errors.Errorf("unknown date filter %q", filter)
}
