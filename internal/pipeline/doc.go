// Package pipeline drives website generation runs through their stages.
//
// A run moves through input, research, design and content in that order.
// Each call to Orchestrator.Advance executes at most one stage and commits
// exactly one state transition with a compare-and-swap on the state
// fingerprint, so concurrent callers never both commit. Runs are persisted
// through statestore.Store and can be resumed after a restart.
//
// The content stage is gated by the quality scorer. A failing report puts
// the run in an awaiting-revision state; only an explicit forced rerun,
// usually on a higher model tier, executes the stage again.
package pipeline
