package segment

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMergePaddedNeighbors(t *testing.T) {
	segs := Merge([]float64{10.0, 12.0, 40.0}, Options{
		Preroll:        2,
		Postroll:       3,
		MergeGap:       5,
		MinDuration:    4,
		SourceDuration: 60,
	})

	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(segs), segs)
	}
	// 10 and 12 pad to [8,13] and [10,15], which overlap and merge
	if !almostEqual(segs[0].Start, 8.0) || !almostEqual(segs[0].End, 15.0) {
		t.Errorf("first segment = [%g,%g], want [8,15]", segs[0].Start, segs[0].End)
	}
	// 40 pads to [38,43], already longer than the minimum
	if !almostEqual(segs[1].Start, 38.0) || !almostEqual(segs[1].End, 43.0) {
		t.Errorf("second segment = [%g,%g], want [38,43]", segs[1].Start, segs[1].End)
	}
}

func TestMergeCloseGapCoalesces(t *testing.T) {
	segs := Merge([]float64{1.0, 1.3, 3.8}, Options{
		Preroll:        0.5,
		Postroll:       1.0,
		MergeGap:       0.4,
		MinDuration:    0.1,
		SourceDuration: 10.0,
	})

	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(segs), segs)
	}
	if !almostEqual(segs[0].Start, 0.5) || !almostEqual(segs[0].End, 2.3) {
		t.Errorf("first segment = [%g,%g], want [0.5,2.3]", segs[0].Start, segs[0].End)
	}
	if !almostEqual(segs[1].Start, 3.3) || !almostEqual(segs[1].End, 4.8) {
		t.Errorf("second segment = [%g,%g], want [3.3,4.8]", segs[1].Start, segs[1].End)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	segs := Merge(nil, Options{
		Preroll:        2,
		Postroll:       2,
		MergeGap:       1,
		MinDuration:    1,
		SourceDuration: 100,
	})
	if len(segs) != 0 {
		t.Errorf("expected no segments for empty input, got %v", segs)
	}
}

func TestMergeShortSegmentWidened(t *testing.T) {
	segs := Merge([]float64{5.0}, Options{
		Preroll:        0,
		Postroll:       0.1,
		MergeGap:       0.1,
		MinDuration:    2.0,
		SourceDuration: 60.0,
	})
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	s := segs[0]
	if !almostEqual(s.Duration(), 2.0) {
		t.Errorf("duration = %g, want 2.0", s.Duration())
	}
	// widened symmetrically around midpoint 5.05
	if !almostEqual(s.Start, 4.05) || !almostEqual(s.End, 6.05) {
		t.Errorf("segment = [%g,%g], want [4.05,6.05]", s.Start, s.End)
	}
}

func TestMergeWidenedSegmentShiftsAtEdge(t *testing.T) {
	segs := Merge([]float64{0.2}, Options{
		Preroll:        0.1,
		Postroll:       0.1,
		MergeGap:       0.5,
		MinDuration:    4.0,
		SourceDuration: 60.0,
	})
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	s := segs[0]
	if s.Start < 0 {
		t.Errorf("segment start %g below 0", s.Start)
	}
	if !almostEqual(s.Duration(), 4.0) {
		t.Errorf("duration = %g, want 4.0 even at source edge", s.Duration())
	}
}

func TestMergeSourceShorterThanMinimum(t *testing.T) {
	segs := Merge([]float64{1.0}, Options{
		Preroll:        0.5,
		Postroll:       0.5,
		MergeGap:       0.5,
		MinDuration:    10.0,
		SourceDuration: 3.0,
	})
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if !almostEqual(segs[0].Start, 0) || !almostEqual(segs[0].End, 3.0) {
		t.Errorf("segment = [%g,%g], want whole source [0,3]", segs[0].Start, segs[0].End)
	}
}

func TestMergeNegativeTimestampsIgnored(t *testing.T) {
	segs := Merge([]float64{-5.0, 10.0}, Options{
		Preroll:        1,
		Postroll:       1,
		MergeGap:       1,
		MinDuration:    0.5,
		SourceDuration: 20,
	})
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d: %v", len(segs), segs)
	}
	if !almostEqual(segs[0].Start, 9.0) || !almostEqual(segs[0].End, 11.0) {
		t.Errorf("segment = [%g,%g], want [9,11]", segs[0].Start, segs[0].End)
	}
}

func TestMergeOutputOrderedAndDisjoint(t *testing.T) {
	times := []float64{3.0, 55.1, 12.7, 12.9, 30.0, 29.5, 58.0, 0.2}
	segs := Merge(times, Options{
		Preroll:        1.5,
		Postroll:       2.5,
		MergeGap:       2.0,
		MinDuration:    3.0,
		SourceDuration: 60.0,
	})
	if len(segs) == 0 {
		t.Fatal("expected segments")
	}
	for i, s := range segs {
		if s.End <= s.Start {
			t.Errorf("segment %d inverted: [%g,%g]", i, s.Start, s.End)
		}
		if s.Start < 0 || s.End > 60.0 {
			t.Errorf("segment %d out of bounds: [%g,%g]", i, s.Start, s.End)
		}
		if s.Duration() < 3.0-1e-9 {
			t.Errorf("segment %d shorter than minimum: %g", i, s.Duration())
		}
		if i > 0 && segs[i-1].End > s.Start {
			t.Errorf("segments %d and %d overlap: %v %v", i-1, i, segs[i-1], s)
		}
	}
}

func TestMergeZeroSourceDuration(t *testing.T) {
	if segs := Merge([]float64{1.0}, Options{SourceDuration: 0}); len(segs) != 0 {
		t.Errorf("expected no segments for empty source, got %v", segs)
	}
}
