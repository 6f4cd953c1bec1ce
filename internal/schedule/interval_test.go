package schedule

import (
	"testing"
	"time"
)

func at(t *testing.T, hour, min int) time.Time {
	t.Helper()
	return time.Date(2026, time.March, 2, hour, min, 0, 0, time.UTC) // a Monday
}

func TestNewIntervalRejectsEmptyRange(t *testing.T) {
	if _, err := NewInterval(at(t, 10, 0), at(t, 10, 0)); err == nil {
		t.Fatal("expected error for zero-length interval")
	}
	if _, err := NewInterval(at(t, 11, 0), at(t, 10, 0)); err == nil {
		t.Fatal("expected error for inverted interval")
	}
}

func TestIntervalOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", Interval{at(t, 10, 0), at(t, 11, 0)}, Interval{at(t, 10, 0), at(t, 11, 0)}, true},
		{"partial", Interval{at(t, 10, 0), at(t, 11, 0)}, Interval{at(t, 10, 30), at(t, 11, 30)}, true},
		{"contained", Interval{at(t, 10, 0), at(t, 12, 0)}, Interval{at(t, 10, 30), at(t, 11, 0)}, true},
		{"back_to_back", Interval{at(t, 10, 0), at(t, 11, 0)}, Interval{at(t, 11, 0), at(t, 12, 0)}, false},
		{"back_to_back_reversed", Interval{at(t, 11, 0), at(t, 12, 0)}, Interval{at(t, 10, 0), at(t, 11, 0)}, false},
		{"disjoint", Interval{at(t, 10, 0), at(t, 11, 0)}, Interval{at(t, 14, 0), at(t, 15, 0)}, false},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("Overlaps=%v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Fatalf("Overlaps is not symmetric: %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntervalSubtractTruncates(t *testing.T) {
	window := Interval{at(t, 9, 0), at(t, 17, 0)}

	// A cut in the middle splits the window.
	got := window.Subtract(Interval{at(t, 12, 0), at(t, 13, 0)})
	if len(got) != 2 {
		t.Fatalf("got %d pieces, want 2", len(got))
	}
	if !got[0].End.Equal(at(t, 12, 0)) || !got[1].Start.Equal(at(t, 13, 0)) {
		t.Fatalf("unexpected pieces: %v", got)
	}

	// A cut hanging over the edge truncates rather than removes.
	got = window.Subtract(Interval{at(t, 8, 0), at(t, 10, 0)})
	if len(got) != 1 {
		t.Fatalf("got %d pieces, want 1", len(got))
	}
	if !got[0].Start.Equal(at(t, 10, 0)) || !got[0].End.Equal(at(t, 17, 0)) {
		t.Fatalf("unexpected truncation: %v", got[0])
	}

	// A disjoint cut leaves the window alone.
	got = window.Subtract(Interval{at(t, 18, 0), at(t, 19, 0)})
	if len(got) != 1 || got[0] != window {
		t.Fatalf("disjoint cut changed window: %v", got)
	}
}

func TestIntersect(t *testing.T) {
	a := []Interval{{at(t, 9, 0), at(t, 12, 0)}, {at(t, 13, 0), at(t, 17, 0)}}
	b := []Interval{{at(t, 11, 0), at(t, 14, 0)}}

	got := Intersect(a, b)
	want := []Interval{{at(t, 11, 0), at(t, 12, 0)}, {at(t, 13, 0), at(t, 14, 0)}}
	if len(got) != len(want) {
		t.Fatalf("got %d intervals, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("interval %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWeekTemplateWindowsOn(t *testing.T) {
	wt := WeekTemplate{
		Days: map[time.Weekday][]DayWindow{
			time.Monday: {{OpenMinute: 9 * 60, CloseMinute: 17 * 60}},
		},
		Breaks: map[time.Weekday][]DayWindow{
			time.Monday: {{OpenMinute: 12 * 60, CloseMinute: 13 * 60}},
		},
	}

	monday := at(t, 0, 0)
	got := wt.WindowsOn(monday)
	want := []Interval{
		{at(t, 9, 0), at(t, 12, 0)},
		{at(t, 13, 0), at(t, 17, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d windows, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window %d: got %v, want %v", i, got[i], want[i])
		}
	}

	// Tuesday has no template entry, so the day is closed.
	if got := wt.WindowsOn(monday.AddDate(0, 0, 1)); len(got) != 0 {
		t.Fatalf("closed day yielded windows: %v", got)
	}
}
