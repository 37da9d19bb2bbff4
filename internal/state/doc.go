// Package state persists the lifecycle of every test unit in an experiment
// and owns the artifact layout on disk.
//
// Unit rows, layer checkpoints and experiment identity live in SQLite
// (state.db). Results, raw responses and the experiment metadata live as
// JSON files next to it:
//
//	<experiment>/state.db
//	<experiment>/results/<test_id>.json
//	<experiment>/raw/<test_id>.<layer>.<seq>.json
//	<experiment>/experiment.json
//	<experiment>/manifest.json
//
// A result file is written before its unit row flips to completed, and on
// load the result files win over the rows. The database is a cache that can
// always be rebuilt from the artifacts. Counts are derived with GROUP BY and
// never stored.
//
// Schema changes bump schemaVersion in schema.go; an existing database with a
// different version is rejected rather than migrated.
package state
