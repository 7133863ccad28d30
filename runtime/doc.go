// Package runtime runs learner code through embedded interpreters and turns
// every outcome into a structured [ExecuteResult].
//
// # Architecture
//
// The package defines three layers:
//
//   - [Runtime]: the lifecycle of one interpreter handle. It moves from
//     Uninitialized to Initializing to Ready or Failed, and bootstraps at most
//     once per wave of concurrent callers (single-flight). A Failed runtime
//     retries on the next call.
//
//   - [Adapter]: one interpreter behind a uniform contract. Adapters embed a
//     Runtime for their expensive bootstrap and expose a single output hook
//     through SetOutput. Implementations live under runtime/backend.
//
//   - [Coordinator]: the entry point. It boots adapters lazily, serializes
//     executions, installs the output hook for the duration of one call, races
//     the call against the request timeout, and classifies failures.
//
// # Serialization
//
// Adapters expose one output hook each, so the Coordinator runs one execution
// at a time. A Run issued while another is in flight queues behind it, or is
// rejected with [ErrBusy] when Config.RejectWhenBusy is set. The hook is
// uninstalled and the lock released only when the adapter call has actually
// returned, never when the caller gave up on it.
//
// # Timeouts
//
// A timeout is a race against a timer. When the timer wins the caller gets a
// timeout_error result immediately, the adapter's context is cancelled so
// interpreters that can be interrupted stop early, and whatever the adapter
// returns later is discarded. Results are tagged with a monotonically
// increasing request id; [Coordinator.Supersede] advances a generation counter
// so results of runs started for a previous exercise come back marked Stale.
//
// # Errors
//
// Failures never escape Execute as Go errors. They are classified into the
// closed [ErrorKind] taxonomy:
//
//   - initialization_error: the adapter failed to boot
//   - syntax_error: the learner's code does not parse
//   - runtime_error: the learner's code failed while running
//   - timeout_error: the run exceeded its time limit
//   - execution_error: anything else, including engine failures
package runtime
