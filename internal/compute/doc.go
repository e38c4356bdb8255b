// Package compute derives entropy results from collected count bags.
//
// Engine.Register binds a log base to a source; Engine.Process folds every
// partial bag of a Collection through an entropy.Accumulator and returns a
// Result with the entropy, its maximum ln(n) for the observed number of
// categories, the normalised value and the source's uptime over the last
// 20 collections. Process accepts an injectable time.Time so tests are
// deterministic.
//
// States: ok, invalid (schema rejected by the estimator), unknown
// (collection failed).
package compute
