// Package combined runs the toggle loop, the sample ring and the data
// handler together.
//
// The tests here drive the whole pipeline with a fake clock; the
// benchmarks measure the cumulative per-iteration cost of the loop's
// building blocks, which isolated micro-benchmarks miss.
package combined
