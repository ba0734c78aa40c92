package pipeline

import (
	"log/slog"
	"strings"
	"time"
)

// CombineDateTime merges the parser's receipt_date (YYYY-MM-DD) and optional
// receipt_time (HH:MM[:SS]) into one timestamp in loc. No date means no
// timestamp; a malformed date also yields nil (logged, not fatal). A present
// time overrides the midnight default; a malformed time is ignored and the
// date-only result is kept.
func CombineDateTime(date, timeStr *string, loc *time.Location, logger *slog.Logger) *time.Time {
	if logger == nil {
		logger = slog.Default()
	}
	if date == nil || strings.TrimSpace(*date) == "" {
		return nil
	}
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(*date), loc)
	if err != nil {
		logger.Warn("pipeline.date.malformed", "date", *date, "error", err)
		return nil
	}
	if timeStr != nil && strings.TrimSpace(*timeStr) != "" {
		s := strings.TrimSpace(*timeStr)
		var clock time.Time
		clock, err = time.Parse("15:04:05", s)
		if err != nil {
			clock, err = time.Parse("15:04", s)
		}
		if err != nil {
			logger.Warn("pipeline.time.malformed", "time", s, "error", err)
		} else {
			d = time.Date(d.Year(), d.Month(), d.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
		}
	}
	return &d
}
