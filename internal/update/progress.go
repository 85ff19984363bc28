package update

// ProgressTracker accumulates accepted chunk sizes for one transfer. The
// value never exceeds the total and never decreases.
//
// A tracker belongs to one request; create a new one for every transfer.
type ProgressTracker struct {
	total int
	value int
}

// NewProgressTracker returns a tracker for a payload of total bytes.
// Negative totals are treated as zero.
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{total: max(total, 0)}
}

// OnChunk adds delta bytes and reports whether the total has been reached.
// Non-positive deltas leave the value unchanged.
func (p *ProgressTracker) OnChunk(delta int) bool {
	if delta > 0 {
		p.value += min(delta, p.total-p.value)
	}
	return p.value >= p.total
}

// Value returns the bytes delivered so far.
func (p *ProgressTracker) Value() int {
	return p.value
}

// Total returns the declared payload size.
func (p *ProgressTracker) Total() int {
	return p.total
}
