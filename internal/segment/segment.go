// Package segment builds extraction intervals from sparse activity
// timestamps.
package segment

import "sort"

// Segment is a half-open time interval in seconds within one source
// video. Immutable once produced by Merge.
type Segment struct {
	Start float64
	End   float64
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Options are the padding/merging/minimum constraints for Merge.
type Options struct {
	Preroll        float64 // seconds prepended before each activity timestamp
	Postroll       float64 // seconds appended after each activity timestamp
	MergeGap       float64 // gaps up to this size are coalesced
	MinDuration    float64 // segments shorter than this are widened
	SourceDuration float64 // clamp bound for every stage
}

// Merge converts activity timestamps into an ordered list of disjoint
// segments. Three stages, clamped at each: pad every timestamp to
// [t-preroll, t+postroll], coalesce intervals whose gap is at most
// MergeGap, then widen anything shorter than MinDuration symmetrically
// around its midpoint. Widening can leave two segments closer than
// MergeGap; that is accepted rather than re-merged so the pass stays
// single-shot and predictable.
func Merge(times []float64, opts Options) []Segment {
	if len(times) == 0 || opts.SourceDuration <= 0 {
		return nil
	}

	candidates := make([]Segment, 0, len(times))
	for _, t := range times {
		if t < 0 {
			continue
		}
		s := Segment{
			Start: clamp(t-opts.Preroll, 0, opts.SourceDuration),
			End:   clamp(t+opts.Postroll, 0, opts.SourceDuration),
		}
		if s.End > s.Start {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Stable sort keeps original timestamp order on equal starts
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})

	merged := make([]Segment, 0, len(candidates))
	cur := candidates[0]
	for _, s := range candidates[1:] {
		if s.Start-cur.End <= opts.MergeGap {
			if s.End > cur.End {
				cur.End = s.End
			}
		} else {
			merged = append(merged, cur)
			cur = s
		}
	}
	merged = append(merged, cur)

	for i, s := range merged {
		merged[i] = enforceMinimum(s, opts.MinDuration, opts.SourceDuration)
	}

	return merged
}

// enforceMinimum widens a short segment symmetrically around its
// midpoint to MinDuration, shifting back inside [0, sourceDuration]
// when the widened interval crosses an edge. A source shorter than
// MinDuration yields the whole clamped span.
func enforceMinimum(s Segment, minDuration, sourceDuration float64) Segment {
	if s.Duration() >= minDuration {
		return s
	}
	if sourceDuration <= minDuration {
		return Segment{Start: 0, End: sourceDuration}
	}

	mid := (s.Start + s.End) / 2
	start := mid - minDuration/2
	end := mid + minDuration/2
	if start < 0 {
		end -= start
		start = 0
	}
	if end > sourceDuration {
		start -= end - sourceDuration
		end = sourceDuration
	}
	return Segment{Start: clamp(start, 0, sourceDuration), End: end}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
