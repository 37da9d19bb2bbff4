// Package truncation decides whether a model response was cut off by its
// output-token budget and picks the next budget from a configured ladder.
package truncation
