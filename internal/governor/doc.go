// Package governor tracks and enforces per-invocation resource quotas:
// script byte size, wall-clock execution time, live element count, live
// listener count, and an advisory memory sample.
//
// Counters are invocation-scoped and owned by one orchestrator; they are
// never process-wide state. Every limit breach is reported as a
// *LimitError carrying the limit kind, the observed value, the configured
// maximum and a remediation hint.
package governor
