// Package runner wires configuration, providers, the state store and the
// orchestrator into a single experiment run.
//
// Run takes an exclusive file lock on the experiment directory, runs the
// preflight checks, resolves the scenario/constitution selection against the
// catalog and hands the matrix to the orchestrator. The manifest is written
// after every run, including interrupted ones, so the directory always
// describes its current state.
package runner
