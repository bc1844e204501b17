package query

// aggregate accumulates min, max and sum over temperature values.
type aggregate struct {
	n        int
	sum      float64
	min, max float64
}

func (a *aggregate) add(v float64) {
	if a.n == 0 || v < a.min {
		a.min = v
	}
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

// result returns nil pointers when nothing was added.
func (a *aggregate) result() (lo, avg, hi *float64) {
	if a.n == 0 {
		return nil, nil, nil
	}
	mean := a.sum / float64(a.n)
	lo, hi = new(float64), new(float64)
	*lo, *hi = a.min, a.max
	return lo, &mean, hi
}
