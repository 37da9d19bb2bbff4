// Package notifications delivers experiment events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// crucible.toml and degrades to a no-op when notifications are disabled.
// Each event can be switched off in the [notifications] section; suppressed
// events return nil without touching the network.
package notifications
