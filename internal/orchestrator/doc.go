// Package orchestrator drives one sandboxed script invocation through its
// lifecycle: validate the source, execute it inside the VM under resource
// limits, drain the operation queue, and tear everything down.
//
// Lifecycle:
//
//	idle -> validating -> executing -> draining -> terminated
//
// with failed reachable from every non-terminal state. The state machine
// rejects out-of-order transitions, which turns sequencing bugs into
// loud errors instead of silent half-torn-down invocations.
//
// Orchestrators are single-use. The capability registry is the only
// collaborator meant to be shared across invocations; everything else
// (governor, batcher, VM, bridge) is built fresh per run so that no
// script observes another script's state.
package orchestrator
