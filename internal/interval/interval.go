// Package interval provides the half-open time interval primitives the
// scheduling engine is built on.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalid is returned when an interval's start is not strictly before its end.
var ErrInvalid = errors.New("interval start must be before end")

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// New validates and constructs an interval. Zero- and negative-length
// inputs are rejected so they can never be stored or intersected.
func New(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: [%s, %s)", ErrInvalid,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Contains reports whether t falls inside the half-open range.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Overlap returns the intersection of a and b. Abutting intervals
// (a.End == b.Start) do not overlap.
func Overlap(a, b Interval) (Interval, bool) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Merge coalesces the input into a minimal sorted, non-overlapping sequence.
// Adjacent intervals (next.Start == cur.End) are folded together. The input
// slice is not modified. Merge is idempotent and order-independent.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := sorted[:1]
	for _, next := range sorted[1:] {
		cur := &merged[len(merged)-1]
		if !next.Start.After(cur.End) {
			if next.End.After(cur.End) {
				cur.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// Intersect computes the intervals common to every set. Each set is one
// participant's intervals; an empty set forces an empty result since no
// interval can be common to a participant with none. The running set is
// intersected pairwise against each further set (cartesian product), with
// early termination once it empties.
//
// Cost is quadratic in per-set interval counts, which is fine at the small
// scale seen here; a sweep-line merge over the sorted sets would bring this
// to O(n log n) if counts ever grow.
func Intersect(sets [][]Interval) []Interval {
	if len(sets) == 0 {
		return nil
	}
	common := sets[0]
	for _, set := range sets[1:] {
		var next []Interval
		for _, a := range common {
			for _, b := range set {
				if ov, ok := Overlap(a, b); ok {
					next = append(next, ov)
				}
			}
		}
		common = next
		if len(common) == 0 {
			return nil
		}
	}
	return common
}
