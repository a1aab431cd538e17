package schedule

import (
	"time"

	"github.com/lueurxax/faq-digest/internal/core/domain"
)

const (
	daysPerWeek      = 7
	lastMillisecond  = int(time.Second - time.Millisecond)
	sundayOffsetDays = 6
)

// LastWeekWindow returns the previous calendar week (Monday 00:00:00.000 to
// Sunday 23:59:59.999) relative to now, in the given timezone. Boundaries are
// built with wall-clock dates so DST transitions inside the week are honoured.
func LastWeekWindow(timezone string, now time.Time) (domain.Window, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return domain.Window{}, err
	}

	return lastWeekWindowIn(loc, now), nil
}

func lastWeekWindowIn(loc *time.Location, now time.Time) domain.Window {
	ref := now.In(loc).AddDate(0, 0, -daysPerWeek)

	sinceMonday := (int(ref.Weekday()) + sundayOffsetDays) % daysPerWeek
	year, month, day := ref.Date()

	from := time.Date(year, month, day-sinceMonday, 0, 0, 0, 0, loc)
	to := time.Date(year, month, day-sinceMonday+sundayOffsetDays, 23, 59, 59, lastMillisecond, loc)

	return domain.Window{From: from.UTC(), To: to.UTC()}
}

// WindowResolver computes last week's window against an injectable clock.
type WindowResolver struct {
	location *time.Location
	now      func() time.Time
}

// NewWindowResolver validates timezone once. A nil clock means time.Now.
func NewWindowResolver(timezone string, clock func() time.Time) (*WindowResolver, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	if clock == nil {
		clock = time.Now
	}

	return &WindowResolver{location: loc, now: clock}, nil
}

// LastWeek returns the previous calendar week relative to the resolver clock.
func (r *WindowResolver) LastWeek() domain.Window {
	return lastWeekWindowIn(r.location, r.now())
}

// At returns the previous calendar week relative to an explicit instant.
func (r *WindowResolver) At(now time.Time) domain.Window {
	return lastWeekWindowIn(r.location, now)
}
