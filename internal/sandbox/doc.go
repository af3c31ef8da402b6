/*
Package sandbox provides isolated execution of untrusted UI scripts.

# Overview

Each invocation runs in its own goja VM with an isolated global scope.
The script has no direct access to host state; its only outward surface
is the mutation bridge, which intercepts every call before an operation
is enqueued:

 1. Source: payload decoding and content-kind checks before execution
 2. Runtime: goja VM with stripped globals and captured console
 3. Bridge: the ui.* mutation API wired through the capability registry,
    the resource governor and the policy validator

# Security Model

Sandboxed code cannot:
  - Access filesystem or network directly
  - Reach require/process/module or spawn anything
  - Instantiate element kinds outside the capability whitelist
  - Exceed element/listener/time quotas without being aborted

Runtimes are created per invocation and never pooled: governor counters
are invocation-scoped and a reused VM could leak state between scripts.
*/
package sandbox
