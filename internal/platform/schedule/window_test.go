package schedule

import (
	"errors"
	"testing"
	"time"
)

const testTimezoneTokyo = "Asia/Tokyo"

func TestLastWeekWindowTokyoWednesday(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, jst)

	w, err := LastWeekWindow(testTimezoneTokyo, now)
	if err != nil {
		t.Fatalf("LastWeekWindow returned error: %v", err)
	}

	wantFrom := time.Date(2024, 6, 3, 0, 0, 0, 0, jst)
	wantTo := time.Date(2024, 6, 9, 23, 59, 59, 999_000_000, jst)

	if !w.From.Equal(wantFrom) {
		t.Errorf("From = %s, want %s", w.From, wantFrom)
	}

	if !w.To.Equal(wantTo) {
		t.Errorf("To = %s, want %s", w.To, wantTo)
	}

	if w.From.Location() != time.UTC || w.To.Location() != time.UTC {
		t.Errorf("expected UTC instants, got %s / %s", w.From.Location(), w.To.Location())
	}
}

func TestLastWeekWindowWeekBoundaries(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)

	tests := []struct {
		name     string
		now      time.Time
		wantFrom time.Time
	}{
		{
			name:     "monday midnight fire",
			now:      time.Date(2024, 6, 10, 0, 0, 0, 0, jst),
			wantFrom: time.Date(2024, 6, 3, 0, 0, 0, 0, jst),
		},
		{
			name:     "sunday late evening",
			now:      time.Date(2024, 6, 16, 23, 59, 0, 0, jst),
			wantFrom: time.Date(2024, 6, 3, 0, 0, 0, 0, jst),
		},
		{
			name:     "utc instant already monday in tokyo",
			now:      time.Date(2024, 6, 9, 15, 30, 0, 0, time.UTC), // 2024-06-10 00:30 JST
			wantFrom: time.Date(2024, 6, 3, 0, 0, 0, 0, jst),
		},
		{
			name:     "crosses month boundary",
			now:      time.Date(2024, 7, 3, 12, 0, 0, 0, jst),
			wantFrom: time.Date(2024, 6, 24, 0, 0, 0, 0, jst),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := LastWeekWindow(testTimezoneTokyo, tt.now)
			if err != nil {
				t.Fatalf("LastWeekWindow returned error: %v", err)
			}

			if !w.From.Equal(tt.wantFrom) {
				t.Errorf("From = %s, want %s", w.From.In(jst), tt.wantFrom)
			}

			wantTo := tt.wantFrom.AddDate(0, 0, 7).Add(-time.Millisecond)
			if !w.To.Equal(wantTo) {
				t.Errorf("To = %s, want %s", w.To.In(jst), wantTo)
			}
		})
	}
}

func TestLastWeekWindowAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// DST starts Sunday 2024-03-10 02:00 local, inside the previous week.
	now := time.Date(2024, 3, 13, 9, 0, 0, 0, loc)

	w, err := LastWeekWindow("America/New_York", now)
	if err != nil {
		t.Fatalf("LastWeekWindow returned error: %v", err)
	}

	from := w.From.In(loc)
	to := w.To.In(loc)

	if from.Hour() != 0 || from.Minute() != 0 || from.Day() != 4 {
		t.Errorf("From local = %s, want 2024-03-04 00:00", from)
	}

	if to.Hour() != 23 || to.Minute() != 59 || to.Second() != 59 || to.Day() != 10 {
		t.Errorf("To local = %s, want 2024-03-10 23:59:59.999", to)
	}

	// One hour is lost to the DST jump.
	want := 7*24*time.Hour - time.Hour - time.Millisecond
	if got := w.To.Sub(w.From); got != want {
		t.Errorf("window length = %s, want %s", got, want)
	}
}

func TestLastWeekWindowInvalidTimezone(t *testing.T) {
	_, err := LastWeekWindow("Mars/Olympus_Mons", time.Now())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	_, err = LastWeekWindow("", time.Now())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for empty timezone, got %v", err)
	}
}

func TestWindowResolverUsesClock(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	fixed := time.Date(2024, 6, 12, 10, 0, 0, 0, jst)

	r, err := NewWindowResolver("JST", func() time.Time { return fixed })
	if err != nil {
		t.Fatalf("NewWindowResolver returned error: %v", err)
	}

	w := r.LastWeek()
	if !w.From.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, jst)) {
		t.Errorf("From = %s", w.From)
	}

	if !w.To.Equal(time.Date(2024, 6, 9, 23, 59, 59, 999_000_000, jst)) {
		t.Errorf("To = %s", w.To)
	}

	if got := r.At(fixed.AddDate(0, 0, 7)); !got.From.Equal(time.Date(2024, 6, 10, 0, 0, 0, 0, jst)) {
		t.Errorf("At(next week).From = %s", got.From)
	}
}
