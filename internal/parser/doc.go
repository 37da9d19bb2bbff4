// Package parser recovers structured fields from raw model text.
//
// A Parser runs a fixed chain of named strategies (direct, sanitized,
// extraction) and stops at the first one that decodes a JSON object. When
// every strategy fails the outcome is manual review: the raw text is kept and
// every expected field carries MissingSentinel. Input is never discarded.
package parser
