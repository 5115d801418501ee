package compress

// tracker forwards progress to the observer, clamped to [0,100] and never
// going backwards. Repeated values are dropped.
type tracker struct {
	fn   ProgressFunc
	last int
}

func newTracker(fn ProgressFunc) *tracker {
	return &tracker{fn: fn, last: -1}
}

func (t *tracker) emit(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p <= t.last {
		return
	}
	t.last = p
	if t.fn != nil {
		t.fn(p)
	}
}

// interpolate maps done/total pages into [from, to].
func interpolate(from, to, done, total int) int {
	if total <= 0 || done >= total {
		return to
	}
	return from + (to-from)*done/total
}
