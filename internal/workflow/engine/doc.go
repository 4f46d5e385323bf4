// Package engine walks a normalized workflow graph from an entry node until
// it reaches a point that needs a human, a terminal node, or a dead end. Each
// call builds its own graph, visited set and execution log, so concurrent runs
// share nothing. Only malformed input, a missing entry node, hook failures and
// context cancellation are returned as errors; every other stop is reported
// through Result.Stop and the log.
package engine
