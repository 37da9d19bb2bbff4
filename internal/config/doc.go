// Package config loads, normalizes, and validates crucible configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours <PROVIDER>_API_KEY environment
// fallbacks. The Config type holds the experiment matrix, the retry and
// batching thresholds, the token ladder, and provider endpoints in one place.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
