// Package entropy estimates the Shannon entropy of an empirical count
// distribution.
//
// A Bag holds the occurrence counts of one aggregation group (one count per
// distinct value or composite key) together with the declared record schema
// of its elements. Estimator.Compute validates the schema, clamps negative
// counts to zero and returns -Σ p·log_b(p) with p = count/total.
//
// Accumulator is the incremental form: partial bags of the same logical
// group are folded into (total, Σ c·ln c, positive categories) and the
// entropy is produced once by Finalize. Accumulators combine, so partial
// aggregation can run in parallel.
//
// Supported bases: natural (""/"log"), "log2", "log10". Logarithms are
// always taken in base e and divided by ln 2 or ln 10.
//
// The package performs no I/O and never logs.
package entropy
