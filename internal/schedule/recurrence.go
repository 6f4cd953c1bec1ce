package schedule

import (
	"fmt"
	"time"
)

type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// RecurrenceRule is a closed description of a repeat pattern. Exactly one of
// Count and Until terminates the series; NewRecurrenceRule rejects every
// other combination.
type RecurrenceRule struct {
	Freq     Frequency
	Interval int
	Count    int
	Until    *time.Time
}

func NewRecurrenceRule(freq Frequency, interval int, count int, until *time.Time) (RecurrenceRule, error) {
	switch freq {
	case FreqDaily, FreqWeekly, FreqMonthly:
	default:
		return RecurrenceRule{}, fmt.Errorf("%w: unknown frequency %q", ErrValidation, freq)
	}
	if interval < 1 {
		return RecurrenceRule{}, fmt.Errorf("%w: interval must be >= 1, got %d", ErrValidation, interval)
	}
	if count > 0 && until != nil {
		return RecurrenceRule{}, fmt.Errorf("%w: count and until are mutually exclusive", ErrValidation)
	}
	if count <= 0 && until == nil {
		return RecurrenceRule{}, fmt.Errorf("%w: one of count or until is required", ErrValidation)
	}
	return RecurrenceRule{Freq: freq, Interval: interval, Count: count, Until: until}, nil
}

// Draft is one not-yet-committed occurrence of a series.
type Draft struct {
	Occurrence int
	Interval   Interval
}

// Expand materializes a rule into concrete drafts starting at seed. The
// horizon caps the number of instances per call regardless of the rule's own
// terminator, bounding work for until-terminated rules far in the future.
func Expand(rule RecurrenceRule, seed Interval, horizon int) []Draft {
	if horizon <= 0 {
		return nil
	}
	limit := horizon
	if rule.Count > 0 && rule.Count < limit {
		limit = rule.Count
	}

	dur := seed.Duration()
	var out []Draft
	for i := 0; i < limit; i++ {
		start := nthStart(rule, seed.Start, i)
		if rule.Until != nil && start.After(*rule.Until) {
			break
		}
		out = append(out, Draft{
			Occurrence: i,
			Interval:   Interval{Start: start, End: start.Add(dur)},
		})
	}
	return out
}

func nthStart(rule RecurrenceRule, seed time.Time, n int) time.Time {
	step := n * rule.Interval
	switch rule.Freq {
	case FreqDaily:
		return seed.AddDate(0, 0, step)
	case FreqWeekly:
		return seed.AddDate(0, 0, 7*step)
	case FreqMonthly:
		return seed.AddDate(0, step, 0)
	}
	return seed
}
