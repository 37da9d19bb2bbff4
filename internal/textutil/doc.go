// Package textutil provides small text helpers shared by the state store,
// config and logging code: filesystem-safe tokens for directory and artifact
// names, and bounded previews of model output for log lines.
package textutil
