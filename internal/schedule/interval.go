package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End). Two intervals that abut
// (End of one equals Start of the other) do not overlap, so back-to-back
// appointments are always legal.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: start %s is not before end %s", ErrValidation, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Subtract removes other from iv and returns the surviving pieces, in order.
// A blackout partially inside a working window truncates the window rather
// than removing it.
func (iv Interval) Subtract(other Interval) []Interval {
	if !iv.Overlaps(other) {
		return []Interval{iv}
	}
	var out []Interval
	if iv.Start.Before(other.Start) {
		out = append(out, Interval{Start: iv.Start, End: other.Start})
	}
	if other.End.Before(iv.End) {
		out = append(out, Interval{Start: other.End, End: iv.End})
	}
	return out
}

// SubtractAll removes every interval in cuts from each interval in windows.
func SubtractAll(windows []Interval, cuts []Interval) []Interval {
	out := windows
	for _, cut := range cuts {
		var next []Interval
		for _, w := range out {
			next = append(next, w.Subtract(cut)...)
		}
		out = next
	}
	return out
}

// Intersect returns the pieces of a that also lie inside some interval of b.
func Intersect(a, b []Interval) []Interval {
	var out []Interval
	for _, x := range a {
		for _, y := range b {
			if !x.Overlaps(y) {
				continue
			}
			start := x.Start
			if y.Start.After(start) {
				start = y.Start
			}
			end := x.End
			if y.End.Before(end) {
				end = y.End
			}
			if start.Before(end) {
				out = append(out, Interval{Start: start, End: end})
			}
		}
	}
	sortIntervals(out)
	return out
}

func sortIntervals(ivs []Interval) {
	sort.Slice(ivs, func(i, j int) bool {
		return ivs[i].Start.Before(ivs[j].Start)
	})
}

// DayWindow is a time-of-day range within a single weekday, minutes from
// midnight, half-open like Interval.
type DayWindow struct {
	OpenMinute  int `json:"open_minute"`
	CloseMinute int `json:"close_minute"`
}

// WeekTemplate holds working windows and break windows per weekday. A
// weekday with no open windows is a closed day and yields no availability.
type WeekTemplate struct {
	Days   map[time.Weekday][]DayWindow `json:"days"`
	Breaks map[time.Weekday][]DayWindow `json:"breaks,omitempty"`
}

// WindowsOn materializes the template for a concrete date in the date's
// location: open windows minus that weekday's breaks.
func (wt WeekTemplate) WindowsOn(date time.Time) []Interval {
	open := windowsFor(wt.Days[date.Weekday()], date)
	breaks := windowsFor(wt.Breaks[date.Weekday()], date)
	return SubtractAll(open, breaks)
}

func windowsFor(dws []DayWindow, date time.Time) []Interval {
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	var out []Interval
	for _, dw := range dws {
		if dw.CloseMinute <= dw.OpenMinute {
			continue
		}
		out = append(out, Interval{
			Start: midnight.Add(time.Duration(dw.OpenMinute) * time.Minute),
			End:   midnight.Add(time.Duration(dw.CloseMinute) * time.Minute),
		})
	}
	return out
}
