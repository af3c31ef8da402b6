// Package policy statically validates untrusted UI scripts against a
// content-security policy before execution.
//
// Script validation is lexical, not a full parse: the enumerated dangerous
// patterns (runtime string evaluation, dynamic function construction,
// string-bodied timers) are matched as source patterns. This trades recall
// against obfuscation for zero false negatives on the explicit patterns;
// it is a documented limitation, not an assumption of safety.
package policy
