package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Directive names a category of permitted sources.
type Directive string

const (
	DirectiveDefaultSrc Directive = "default-src"
	DirectiveScriptSrc  Directive = "script-src"
	DirectiveStyleSrc   Directive = "style-src"
	DirectiveConnectSrc Directive = "connect-src"
	DirectiveImgSrc     Directive = "img-src"
	DirectiveMediaSrc   Directive = "media-src"
	DirectiveFontSrc    Directive = "font-src"
	DirectiveWorkerSrc  Directive = "worker-src"
)

// Source tokens with special meaning in a directive list.
const (
	SourceSelf         = "'self'"
	SourceNone         = "'none'"
	SourceData         = "data:"
	SourceAny          = "*"
	SourceUnsafeInline = "'unsafe-inline'"
	SourceUnsafeEval   = "'unsafe-eval'"
)

// Severity classifies a violation.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Violation records a specific policy breach.
type Violation struct {
	Directive    Directive `json:"directive"`
	BlockedValue string    `json:"blocked_value"`
	Reason       string    `json:"reason"`
	Severity     Severity  `json:"severity"`
}

// Result bundles the outcome of one validation.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// ViolationError wraps the first violation when the validator is
// configured to fail fast.
type ViolationError struct {
	Violation Violation
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("policy violation [%s/%s]: %s",
		e.Violation.Directive, e.Violation.Severity, e.Violation.Reason)
}

// defaultPolicy is the conservative built-in policy: same-origin
// everywhere, data: URLs only for images, no workers.
func defaultPolicy() map[Directive][]string {
	return map[Directive][]string{
		DirectiveDefaultSrc: {SourceSelf},
		DirectiveScriptSrc:  {SourceSelf},
		DirectiveStyleSrc:   {SourceSelf},
		DirectiveConnectSrc: {SourceSelf},
		DirectiveImgSrc:     {SourceSelf, SourceData},
		DirectiveMediaSrc:   {SourceSelf},
		DirectiveFontSrc:    {SourceSelf},
		DirectiveWorkerSrc:  {SourceNone},
	}
}

// serialize renders a policy in header form, directives sorted for a
// stable representation.
func serialize(policy map[Directive][]string) string {
	names := make([]string, 0, len(policy))
	for d := range policy {
		names = append(names, string(d))
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		sources := policy[Directive(name)]
		parts = append(parts, fmt.Sprintf("%s %s", name, strings.Join(sources, " ")))
	}
	return strings.Join(parts, "; ")
}
