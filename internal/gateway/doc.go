// Package gateway is the single entry point for model calls.
//
// A Router dispatches each call to the Provider registered for the model's
// provider name, applies the per-call timeout, normalizes finish reasons and
// classifies every failure as transient or permanent through CallError. The
// gateway never retries; retry policy belongs to the executor.
package gateway
