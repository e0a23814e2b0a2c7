package schedule

import (
	"fmt"
	"strings"
	"time"
)

// WeekdayLabels maps Go weekdays to the Traditional Chinese labels used in
// summaries and persisted entries.
var WeekdayLabels = map[time.Weekday]string{
	time.Monday:    "週一",
	time.Tuesday:   "週二",
	time.Wednesday: "週三",
	time.Thursday:  "週四",
	time.Friday:    "週五",
	time.Saturday:  "週六",
	time.Sunday:    "主日",
}

// weekdayAliases resolves operator-supplied weekday descriptors, both
// English and Chinese forms.
var weekdayAliases = map[string]time.Weekday{
	"mon": time.Monday, "monday": time.Monday, "週一": time.Monday, "周一": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday, "週二": time.Tuesday, "周二": time.Tuesday,
	"wed": time.Wednesday, "weds": time.Wednesday, "wednesday": time.Wednesday, "週三": time.Wednesday, "周三": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday, "週四": time.Thursday, "周四": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "週五": time.Friday, "周五": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "週六": time.Saturday, "周六": time.Saturday,
	"sun": time.Sunday, "sunday": time.Sunday, "週日": time.Sunday, "周日": time.Sunday, "主日": time.Sunday,
}

// ParseWeekday resolves a weekday label or alias.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday label %q", ErrValidation, s)
	}
	return wd, nil
}

// WeekdayLabel returns the display label for a date's weekday.
func WeekdayLabel(d Date) string { return WeekdayLabels[d.Weekday()] }

// Today returns the current calendar date in the operational timezone.
func Today(now time.Time) Date {
	if now.IsZero() {
		now = time.Now()
	}
	return DateOf(now.In(Location()))
}

// ParseDescriptor resolves an operator date descriptor: an ISO date,
// "today"/"tomorrow" (and Chinese equivalents), or a weekday alias resolved
// forward from today (a matching weekday today resolves to today).
func ParseDescriptor(descriptor string, today Date) (Date, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return Date{}, fmt.Errorf("%w: empty date descriptor", ErrValidation)
	}
	if d, err := ParseDate(descriptor); err == nil {
		return d, nil
	}

	switch strings.ToLower(descriptor) {
	case "today", "今天", "現今":
		return today, nil
	case "tomorrow", "明天":
		return today.AddDays(1), nil
	}

	target, err := ParseWeekday(descriptor)
	if err != nil {
		return Date{}, fmt.Errorf("%w: unrecognized date descriptor %q", ErrValidation, descriptor)
	}
	delta := (int(target) - int(today.Weekday()) + 7) % 7
	return today.AddDays(delta), nil
}

// NextMonday returns the Monday strictly after today.
func NextMonday(today Date) Date {
	delta := (int(time.Monday) - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return today.AddDays(delta)
}

// WeekStart returns the Monday of the week containing d.
func WeekStart(d Date) Date {
	offset := (int(d.Weekday()) - int(time.Monday) + 7) % 7
	return d.AddDays(-offset)
}
