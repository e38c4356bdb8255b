package entropy

import "math"

// Estimator computes the empirical entropy of count bags in a fixed base.
// An Estimator is immutable and safe for concurrent use.
type Estimator struct {
	base LogBase
}

// New returns an Estimator for the given base token ("", "log", "log2",
// "log10"). An unknown token fails here, never at Compute time.
func New(token string) (*Estimator, error) {
	b, err := ParseLogBase(token)
	if err != nil {
		return nil, err
	}
	return &Estimator{base: b}, nil
}

// NewWithBase returns an Estimator for an already parsed base.
func NewWithBase(b LogBase) *Estimator {
	return &Estimator{base: b}
}

// Base returns the configured log base.
func (e *Estimator) Base() LogBase {
	return e.base
}

// Compute validates bag and returns its entropy.
//
// The schema is checked once before any count is read: a missing schema or
// one whose field count is not 1 yields *SchemaShapeError, a non-integral
// field yields *SchemaTypeError.
func (e *Estimator) Compute(bag Bag) (float64, error) {
	if err := bag.Validate(); err != nil {
		return 0, err
	}
	return Entropy(bag.Counts, e.base), nil
}

// NewAccumulator returns an empty Accumulator in the estimator's base.
func (e *Estimator) NewAccumulator() *Accumulator {
	return &Accumulator{base: e.base}
}

// Entropy returns the Shannon entropy of counts in base b. Negative counts
// count as zero occurrences. A zero total (empty or all-zero input) yields 0.
// The total is summed in float64 so that int64 counts cannot overflow it.
func Entropy(counts []int64, b LogBase) float64 {
	var total float64
	for _, c := range counts {
		total += float64(clampCount(c))
	}
	if total == 0 {
		return 0
	}

	var h float64
	for _, c := range counts {
		c = clampCount(c)
		if c == 0 {
			continue
		}
		p := float64(c) / total
		h -= p * math.Log(p)
	}
	return h / b.divisor()
}

// addCount adds two non-negative totals, saturating at math.MaxInt64.
func addCount(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// clampCount maps negative counts to zero.
func clampCount(c int64) int64 {
	if c < 0 {
		return 0
	}
	return c
}
