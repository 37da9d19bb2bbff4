// Package preflight provides readiness checks for the filesystem paths,
// catalog files and model providers an experiment run depends on.
//
// These checks run in two contexts:
//   - The runner calls RunAll before starting a run. If any check fails the
//     run is refused, so no unit burns retries against a missing key or an
//     unwritable state directory.
//   - The CLI "crucible preflight" command prints every result and can
//     additionally ping each provider with a tiny request.
//
// Provider pings are opt-in; key and path checks never touch the network.
package preflight
