// Command crucible runs and inspects LLM batch experiments.
//
// "crucible run" creates or resumes the experiment named in the config file
// and is safe to repeat: completed units are never re-run. The remaining
// commands read the experiment directory without changing unit state, except
// "crucible retry", which re-enqueues failed units under the run lock.
package main
