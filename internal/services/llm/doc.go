// Package llm provides an OpenAI-compatible chat completions client used as
// a gateway.Provider for OpenRouter, OpenAI, xAI and DeepSeek.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send one system/user prompt pair with a max_tokens budget.
// Client.HealthCheck: verify API key and model availability.
//
// # Errors
//
// HTTP 408/429/5xx, undecodable bodies and in-band API errors are returned
// as transient gateway.CallError values (Retry-After is carried along);
// other 4xx statuses and missing credentials are permanent. The client never
// retries; the executor owns retry policy.
package llm
