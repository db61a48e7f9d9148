package progress

import (
	"testing"
	"time"
)

func TestSmoothMonotonic(t *testing.T) {
	prev := -1
	for s := 0; s <= 300; s++ {
		v := Smooth(30, time.Duration(s)*time.Second)
		if v < prev {
			t.Fatalf("Smooth decreased at %ds: %d -> %d", s, prev, v)
		}
		prev = v
	}
}

func TestSmoothNeverReachesNextThreshold(t *testing.T) {
	cases := []struct {
		checkpoint int
		next       int
	}{
		{0, CheckpointStructure},
		{CheckpointStructure, CheckpointEnrich},
		{CheckpointEnrich, CheckpointSections},
		{CheckpointSections, CheckpointVerify},
		{CheckpointVerify, CheckpointGraphics},
		{CheckpointGraphics, CheckpointDone},
	}
	for _, tc := range cases {
		v := Smooth(tc.checkpoint, 24*time.Hour)
		if v >= tc.next {
			t.Errorf("Smooth(%d, 24h) = %d, must stay below %d", tc.checkpoint, v, tc.next)
		}
		if v < tc.checkpoint {
			t.Errorf("Smooth(%d, 24h) = %d, must not fall below checkpoint", tc.checkpoint, v)
		}
	}
}

func TestSmoothStartsAtCheckpoint(t *testing.T) {
	if v := Smooth(30, 0); v != 30 {
		t.Errorf("Smooth(30, 0) = %d, want 30", v)
	}
	if v := Smooth(100, time.Minute); v != 100 {
		t.Errorf("Smooth(100, 1m) = %d, want 100", v)
	}
}

func TestSmoothIntermediateCheckpoint(t *testing.T) {
	// A checkpoint inside the sections span (e.g. confirmed at 55) must
	// creep toward 80, not toward a coarser boundary.
	v := Smooth(55, 24*time.Hour)
	if v < 55 || v >= CheckpointSections {
		t.Errorf("Smooth(55, 24h) = %d, want in [55, %d)", v, CheckpointSections)
	}
}

func TestSectionProgress(t *testing.T) {
	if v := SectionProgress(0, 10); v != CheckpointEnrich {
		t.Errorf("no sections done: got %d, want %d", v, CheckpointEnrich)
	}
	if v := SectionProgress(10, 10); v != CheckpointSections {
		t.Errorf("all sections done: got %d, want %d", v, CheckpointSections)
	}
	mid := SectionProgress(5, 10)
	if mid <= CheckpointEnrich || mid >= CheckpointSections {
		t.Errorf("half done: got %d, want inside (%d, %d)", mid, CheckpointEnrich, CheckpointSections)
	}
	if v := SectionProgress(3, 0); v != CheckpointSections {
		t.Errorf("zero total: got %d, want %d", v, CheckpointSections)
	}
}
