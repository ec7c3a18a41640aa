package domain

// InInterval is the one ring-membership predicate the whole simulation is
// built on: it reports whether x lies between start and end walking
// clockwise around the ring, with endpoint inclusion controlled by the
// inclusiveStart/inclusiveEnd flags.
//
//   - start == end: the interval covers the entire ring.
//   - start < end: a linear check against [start, end] with inclusion per
//     the flags.
//   - start > end: the interval wraps through zero, i.e. (start, 2^Bits) ∪
//     [0, end), again with inclusion per the flags.
func (sp Space) InInterval(start, end, x ID, inclusiveStart, inclusiveEnd bool) bool {
	if start.Equal(end) {
		return true
	}

	afterStart := x.Cmp(start) > 0 || (inclusiveStart && x.Equal(start))
	beforeEnd := x.Cmp(end) < 0 || (inclusiveEnd && x.Equal(end))

	if start.Cmp(end) < 0 {
		return afterStart && beforeEnd
	}
	// Wrap-around: x qualifies by clearing either half of the split interval.
	return afterStart || beforeEnd
}
