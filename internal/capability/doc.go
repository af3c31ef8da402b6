// Package capability maintains the whitelist of element kinds a sandboxed
// script may instantiate.
//
// Kinds are split into a Core tier that is available from construction and
// an Extended tier that is materialized on first reference. Kinds absent
// from both tiers are rejected unconditionally; the denied set is a hard
// security boundary and cannot be re-enabled through configuration.
package capability
