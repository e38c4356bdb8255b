package entropy

import (
	"fmt"
	"math"
)

// LogBase selects the unit of the entropy value.
type LogBase int

const (
	// Natural reports entropy in nats.
	Natural LogBase = iota
	// Log2 reports entropy in bits.
	Log2
	// Log10 reports entropy in hartleys.
	Log10
)

// ParseLogBase maps a base token to a LogBase.
// "" and "log" select Natural. Any other unknown token is a *ConfigError.
func ParseLogBase(token string) (LogBase, error) {
	switch token {
	case "", "log":
		return Natural, nil
	case "log2":
		return Log2, nil
	case "log10":
		return Log10, nil
	default:
		return Natural, &ConfigError{Token: token}
	}
}

// String returns the canonical token for b.
func (b LogBase) String() string {
	switch b {
	case Natural:
		return "log"
	case Log2:
		return "log2"
	case Log10:
		return "log10"
	default:
		return fmt.Sprintf("LogBase(%d)", int(b))
	}
}

// divisor converts a natural logarithm into base b.
func (b LogBase) divisor() float64 {
	switch b {
	case Log2:
		return math.Ln2
	case Log10:
		return math.Ln10
	default:
		return 1
	}
}

// MaxEntropy is the entropy of n equally likely categories, ln(n) in base b.
// It returns 0 for n < 2.
func MaxEntropy(n int, b LogBase) float64 {
	if n < 2 {
		return 0
	}
	return math.Log(float64(n)) / b.divisor()
}
