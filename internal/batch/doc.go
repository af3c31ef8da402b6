// Package batch accumulates tree-mutation operations and flushes them to
// the renderer as ordered, atomic batches.
//
// The flush window is a debounce-from-empty: it is scheduled when the
// first operation arrives after a flush, not on a fixed clock tick.
// Reaching the size ceiling flushes immediately. Timer-driven flushes
// additionally pass a rate limiter so a pathological enqueue cadence
// cannot exceed the configured flush rate; size-triggered and explicit
// flushes bypass it, keeping the latency bound hard.
package batch
