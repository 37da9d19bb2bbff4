// Package manifest summarizes an experiment directory: unit counts, hard
// failures grouped by kind and the units whose parsed output needs manual
// review. It reads the state store and result artifacts without mutating
// unit state, so it is safe to build while a run is in progress.
package manifest
