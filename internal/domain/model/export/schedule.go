package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/webitel/datum-exporter/internal/errors"
)

// ScheduleType is the recurrence class of an export configuration.
type ScheduleType string

const (
	ScheduleHourly  ScheduleType = "HOURLY"
	ScheduleDaily   ScheduleType = "DAILY"
	ScheduleWeekly  ScheduleType = "WEEKLY"
	ScheduleMonthly ScheduleType = "MONTHLY"
	ScheduleAdhoc   ScheduleType = "ADHOC"
)

// ErrAdhocBoundary is returned when a periodic boundary is requested for an ad hoc schedule.
var ErrAdhocBoundary = errors.NewConfigurationError(
	"export.schedule.adhoc_boundary",
	"Adhoc schedule has no periodic boundary; an explicit date range is required",
)

func (s ScheduleType) String() string { return string(s) }

// ParseScheduleType accepts the enum name in any case. Unknown values return false.
func ParseScheduleType(v string) (ScheduleType, bool) {
	switch ScheduleType(strings.ToUpper(strings.TrimSpace(v))) {
	case ScheduleHourly:
		return ScheduleHourly, true
	case ScheduleDaily:
		return ScheduleDaily, true
	case ScheduleWeekly:
		return ScheduleWeekly, true
	case ScheduleMonthly:
		return ScheduleMonthly, true
	case ScheduleAdhoc:
		return ScheduleAdhoc, true
	default:
		return "", false
	}
}

func (s ScheduleType) IsPeriodic() bool {
	switch s {
	case ScheduleHourly, ScheduleDaily, ScheduleWeekly, ScheduleMonthly:
		return true
	}
	return false
}

// PeriodStart truncates t to the start of its recurrence unit in loc.
// Weeks start on Monday.
func (s ScheduleType) PeriodStart(t time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	switch s {
	case ScheduleHourly:
		// truncate in absolute time so the repeated hour at the end of DST keeps its own offset
		within := time.Duration(lt.Minute())*time.Minute + time.Duration(lt.Second())*time.Second +
			time.Duration(lt.Nanosecond())
		return lt.Add(-within), nil
	case ScheduleDaily:
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc), nil
	case ScheduleWeekly:
		offset := (int(lt.Weekday()) + 6) % 7
		return time.Date(lt.Year(), lt.Month(), lt.Day()-offset, 0, 0, 0, 0, loc), nil
	case ScheduleMonthly:
		return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc), nil
	case ScheduleAdhoc:
		return time.Time{}, ErrAdhocBoundary
	default:
		return time.Time{}, fmt.Errorf("unsupported schedule type %q", string(s))
	}
}

// NextBoundary returns the start of the next recurrence unit strictly after ref, computed in loc.
// Calendar arithmetic is done in loc so that DST changes keep boundaries on local midnight.
func (s ScheduleType) NextBoundary(ref time.Time, loc *time.Location) (time.Time, error) {
	start, err := s.PeriodStart(ref, loc)
	if err != nil {
		return time.Time{}, err
	}
	return s.advance(start, 1), nil
}

// ExportDate returns the start of the last complete period before now, shifted by hourDelayOffset hours.
// Schedulers use it as the export date of the job they create at now.
func (s ScheduleType) ExportDate(now time.Time, loc *time.Location, hourDelayOffset int) (time.Time, error) {
	shifted := now.Add(-time.Duration(hourDelayOffset) * time.Hour)
	start, err := s.PeriodStart(shifted, loc)
	if err != nil {
		return time.Time{}, err
	}
	return s.advance(start, -1), nil
}

func (s ScheduleType) advance(start time.Time, n int) time.Time {
	switch s {
	case ScheduleHourly:
		return start.Add(time.Duration(n) * time.Hour)
	case ScheduleDaily:
		return start.AddDate(0, 0, n)
	case ScheduleWeekly:
		return start.AddDate(0, 0, 7*n)
	default:
		return start.AddDate(0, n, 0)
	}
}
