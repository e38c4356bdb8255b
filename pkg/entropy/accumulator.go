package entropy

import "math"

// Accumulator folds partial bags of one logical group and produces their
// entropy once all partials have been seen.
//
// The fold keeps (total, Σ c·ln c, positive categories); since
// H = ln(total) - Σ c·ln c / total, the individual counts are not retained
// and two accumulators combine in O(1).
//
// An Accumulator is not safe for concurrent use. Use one per goroutine and
// Combine them.
type Accumulator struct {
	base      LogBase
	total     int64   // saturates at math.MaxInt64
	mass      float64 // total as float64, used by Finalize
	cLogC     float64
	positive  int
	finalized bool
	result    float64
}

// NewAccumulator returns an empty Accumulator in base b.
func NewAccumulator(b LogBase) *Accumulator {
	return &Accumulator{base: b}
}

// Accumulate validates a partial bag and adds its counts.
// On a schema error nothing is added.
func (a *Accumulator) Accumulate(bag Bag) error {
	if a.finalized {
		return ErrFinalized
	}
	if err := bag.Validate(); err != nil {
		return err
	}
	for _, c := range bag.Counts {
		a.add(c)
	}
	return nil
}

func (a *Accumulator) add(c int64) {
	c = clampCount(c)
	if c == 0 {
		return
	}
	a.total = addCount(a.total, c)
	a.mass += float64(c)
	a.cLogC += float64(c) * math.Log(float64(c))
	a.positive++
}

// Combine merges other into a. other is left untouched.
func (a *Accumulator) Combine(other *Accumulator) error {
	if a.finalized {
		return ErrFinalized
	}
	a.total = addCount(a.total, other.total)
	a.mass += other.mass
	a.cLogC += other.cLogC
	a.positive += other.positive
	return nil
}

// Total returns the clamped sum of all counts seen so far, saturated at
// math.MaxInt64.
func (a *Accumulator) Total() int64 {
	return a.total
}

// Categories returns the number of counts with positive mass seen so far.
func (a *Accumulator) Categories() int {
	return a.positive
}

// Finalize returns the entropy of everything accumulated. Calling it again
// returns the same value; the accumulator rejects further input.
func (a *Accumulator) Finalize() float64 {
	if a.finalized {
		return a.result
	}
	a.finalized = true
	if a.positive < 2 {
		a.result = 0
		return 0
	}
	t := a.mass
	h := math.Log(t) - a.cLogC/t
	if h < 0 {
		// rounding on nearly degenerate distributions
		h = 0
	}
	a.result = h / a.base.divisor()
	return a.result
}
