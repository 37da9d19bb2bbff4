// Package services defines shared utilities consumed by the pipeline layers
// and the provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp test IDs, layer names, experiment and run
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures as
//     transient, permanent, or truncation so the executor can decide whether a
//     unit is retried.
//
// Use these helpers when wiring new provider or pipeline logic so operational
// behaviour (error handling, observability, retries) stays uniform.
package services
