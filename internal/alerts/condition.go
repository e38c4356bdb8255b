package alerts

import (
	"strconv"
	"strings"

	"github.com/countentropy/countentropy/internal/compute"
)

// evalCondition evaluates a rule condition against a Result.
//
// Supported expressions (field operator value):
//
//	entropy < 0.5
//	normalized > 0.95
//	max_entropy >= 3
//	categories >= 100
//	total < 1000
//	uptime_pct < 99
//	state == invalid
//	state != ok
//
// Numeric rules never fire on results that are not "ok". Callers should
// check applies first so such results also leave firing alerts untouched.
//
// Returns (fires, triggering value). Unparseable expressions and unknown
// fields never fire.
func evalCondition(cond string, res *compute.Result) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "state" {
		switch op {
		case "==":
			return res.State == rhs, 0
		case "!=":
			return res.State != rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, res)
	if !ok {
		return false, 0
	}
	if field != "uptime_pct" && res.State != compute.StateOK {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// applies reports whether cond can be judged on res. Numeric rules other
// than uptime_pct carry no value on results that are not "ok".
func applies(cond string, res *compute.Result) bool {
	parts := strings.Fields(cond)
	if len(parts) != 3 || parts[0] == "state" || parts[0] == "uptime_pct" {
		return true
	}
	return res.State == compute.StateOK
}

// numericField maps a field name to its value in the result.
func numericField(field string, res *compute.Result) (float64, bool) {
	switch field {
	case "entropy":
		return res.Entropy, true
	case "normalized":
		return res.Normalized, true
	case "max_entropy":
		return res.MaxEntropy, true
	case "categories":
		return float64(res.Categories), true
	case "total":
		return float64(res.Total), true
	case "uptime_pct":
		return res.UptimePct, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
