package update

import (
	"math"
	"testing"
)

func TestProgressTracker(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		deltas []int
		want   []int
		done   []bool
	}{
		{
			name:   "exact chunks",
			total:  10,
			deltas: []int{4, 4, 2},
			want:   []int{4, 8, 10},
			done:   []bool{false, false, true},
		},
		{
			name:   "clamped at total",
			total:  10,
			deltas: []int{8, 8, 8},
			want:   []int{8, 10, 10},
			done:   []bool{false, true, true},
		},
		{
			name:   "non-positive deltas ignored",
			total:  10,
			deltas: []int{3, 0, -5, 2},
			want:   []int{3, 3, 3, 5},
			done:   []bool{false, false, false, false},
		},
		{
			name:   "huge delta saturates",
			total:  100,
			deltas: []int{10, math.MaxInt, math.MaxInt},
			want:   []int{10, 100, 100},
			done:   []bool{false, true, true},
		},
		{
			name:   "zero total is immediately done",
			total:  0,
			deltas: []int{5},
			want:   []int{0},
			done:   []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgressTracker(tt.total)
			if p.Value() != 0 {
				t.Fatalf("initial Value() = %d, want 0", p.Value())
			}
			for i, d := range tt.deltas {
				done := p.OnChunk(d)
				if p.Value() != tt.want[i] {
					t.Errorf("after delta %d: Value() = %d, want %d", d, p.Value(), tt.want[i])
				}
				if done != tt.done[i] {
					t.Errorf("after delta %d: done = %v, want %v", d, done, tt.done[i])
				}
			}
		})
	}
}

func TestProgressTracker_NeverExceedsTotal(t *testing.T) {
	p := NewProgressTracker(1000)
	last := 0
	for i := 1; i <= 100; i++ {
		p.OnChunk(i * 7 % 53)
		if p.Value() < last {
			t.Fatalf("Value() decreased from %d to %d", last, p.Value())
		}
		if p.Value() > p.Total() {
			t.Fatalf("Value() = %d exceeds total %d", p.Value(), p.Total())
		}
		last = p.Value()
	}
}

func TestProgressTracker_NegativeTotal(t *testing.T) {
	if got := NewProgressTracker(-1).Total(); got != 0 {
		t.Errorf("Total() = %d, want 0", got)
	}
}
