// Package schedule resolves the reporting window and the trigger schedule
// of the weekly FAQ job. Both are evaluated in a named IANA timezone.
package schedule

import (
	"fmt"
	"strings"
	"time"
	// Embed tzdata for environments without zoneinfo.
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	faqerrors "github.com/lueurxax/faq-digest/internal/core/errors"
)

// ErrConfiguration is re-exported so callers of this package can classify
// schedule failures without importing the errors package.
var ErrConfiguration = faqerrors.ErrConfiguration

var timezoneAliases = map[string]string{
	"Asia/Nicosia": "Europe/Nicosia",
	"JST":          "Asia/Tokyo",
}

// NormalizeTimezone maps known aliases to canonical IANA names.
func NormalizeTimezone(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	if canonical, ok := timezoneAliases[value]; ok {
		return canonical
	}

	return value
}

// LoadLocation resolves a timezone name. An empty name is rejected rather
// than silently treated as UTC: the whole job is defined in local time.
func LoadLocation(name string) (*time.Location, error) {
	name = NormalizeTimezone(name)
	if name == "" {
		return nil, fmt.Errorf("%w: timezone is empty", ErrConfiguration)
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timezone %q: %w", ErrConfiguration, name, err)
	}

	return loc, nil
}

// Trigger is a cron expression bound to a timezone.
type Trigger struct {
	expr     string
	location *time.Location
	schedule cron.Schedule
}

// ParseTrigger parses a standard five-field cron expression (descriptors such
// as @weekly are accepted too) evaluated in timezone.
func ParseTrigger(expr, timezone string) (*Trigger, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	expr = strings.TrimSpace(expr)

	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid schedule %q: %w", ErrConfiguration, expr, err)
	}

	return &Trigger{expr: expr, location: loc, schedule: sched}, nil
}

// Next returns the first fire time strictly after the given instant.
func (t *Trigger) Next(after time.Time) time.Time {
	return t.schedule.Next(after.In(t.location))
}

// Location returns the timezone the trigger is evaluated in.
func (t *Trigger) Location() *time.Location {
	return t.location
}

func (t *Trigger) String() string {
	return fmt.Sprintf("%s (%s)", t.expr, t.location)
}
