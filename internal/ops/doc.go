// Package ops defines the tree-mutation operations a sandboxed script can
// emit and the batch container that delivers them to the renderer.
//
// The operation set is a closed tagged union: internally generated
// operations can never carry an unknown kind, and externally supplied
// element kind strings are validated before an operation is ever built.
// Operations are immutable after creation; the batcher stamps them with a
// monotonic sequence number and timestamp at enqueue time.
package ops
