package policy

import (
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/driftframe/uiscript/internal/logging"
)

// Config configures a Validator.
type Config struct {
	// Policy overrides merge per-directive over the built-in defaults.
	Policy map[Directive][]string
	// ThrowOnViolation makes ValidateScript fail fast on the first
	// violation instead of collecting all of them.
	ThrowOnViolation bool
	Debug            bool
}

// DefaultConfig returns the conservative validator configuration.
func DefaultConfig() Config {
	return Config{ThrowOnViolation: true}
}

// scriptPattern pairs a compiled pattern with the violation it produces.
type scriptPattern struct {
	re     *regexp.Regexp
	reason string
}

var scriptPatterns = []scriptPattern{
	{
		re:     regexp.MustCompile(`\beval\s*\(`),
		reason: "eval() executes arbitrary strings as code; compute the value directly or use a data structure instead",
	},
	{
		re:     regexp.MustCompile(`\bnew\s+Function\s*\(`),
		reason: "the Function constructor builds code from strings; declare the function statically instead",
	},
	{
		re:     regexp.MustCompile("\\b(setTimeout|setInterval)\\s*\\(\\s*[\"'`]"),
		reason: "string-bodied timers are implicit eval; pass a function reference instead of a string",
	},
}

// inlineHandlerPattern matches inline event handler attributes. These are
// discouraged but not exploitable inside this execution model, so they
// surface as warnings, never violations.
var inlineHandlerPattern = regexp.MustCompile(`\bon[a-z]+\s*=\s*["']`)

// cssExpressionPattern matches legacy IE dynamic-expression syntax.
var cssExpressionPattern = regexp.MustCompile(`(?i)\bexpression\s*\(`)

// Validator checks scripts, URLs and inline styles against a policy. The
// directive sets are immutable once constructed.
type Validator struct {
	policy           map[Directive][]string
	throwOnViolation bool
	debug            bool
	log              *logging.Logger
}

// NewValidator builds a validator, merging any policy override over the
// conservative default.
func NewValidator(cfg Config, log *logging.Logger) *Validator {
	if log == nil {
		log = logging.NewNop()
	}

	policy := defaultPolicy()
	for d, sources := range cfg.Policy {
		merged := make([]string, len(sources))
		copy(merged, sources)
		policy[d] = merged
	}

	return &Validator{
		policy:           policy,
		throwOnViolation: cfg.ThrowOnViolation,
		debug:            cfg.Debug,
		log:              log.Component("policy"),
	}
}

// ValidateScript scans source text for the enumerated dangerous patterns.
// In fail-fast mode the first violation aborts the scan and is returned as
// a *ViolationError; otherwise all violations are collected into the
// result and err is nil.
func (v *Validator) ValidateScript(source string) (*Result, error) {
	result := &Result{Valid: true}

	for _, p := range scriptPatterns {
		match := p.re.FindString(source)
		if match == "" {
			continue
		}
		violation := Violation{
			Directive:    DirectiveScriptSrc,
			BlockedValue: strings.TrimSpace(match),
			Reason:       p.reason,
			Severity:     SeverityHigh,
		}
		result.Valid = false
		result.Violations = append(result.Violations, violation)

		if v.throwOnViolation {
			v.logResult("script", result)
			return result, &ViolationError{Violation: violation}
		}
	}

	if inlineHandlerPattern.MatchString(source) {
		result.Warnings = append(result.Warnings,
			"inline event handler attributes are discouraged; use addEventListener")
	}

	v.logResult("script", result)
	return result, nil
}

// ValidateURL checks a URL against the directive's allowed-source list.
// Unknown directives fall back to default-src.
func (v *Validator) ValidateURL(rawURL string, directive Directive) (*Result, error) {
	result := &Result{Valid: true}

	sources, ok := v.policy[directive]
	if !ok {
		sources = v.policy[DirectiveDefaultSrc]
	}

	if !v.urlAllowed(rawURL, sources) {
		violation := Violation{
			Directive:    directive,
			BlockedValue: rawURL,
			Reason:       "URL source is not in the directive's allow list",
			Severity:     SeverityHigh,
		}
		result.Valid = false
		result.Violations = append(result.Violations, violation)
		v.logResult("url", result)
		if v.throwOnViolation {
			return result, &ViolationError{Violation: violation}
		}
	}

	return result, nil
}

// ValidateInlineStyle rejects legacy CSS dynamic-expression syntax and
// permits everything else.
func (v *Validator) ValidateInlineStyle(style string) (*Result, error) {
	result := &Result{Valid: true}

	if match := cssExpressionPattern.FindString(style); match != "" {
		violation := Violation{
			Directive:    DirectiveStyleSrc,
			BlockedValue: strings.TrimSpace(match),
			Reason:       "CSS expression() evaluates script from style; use static values",
			Severity:     SeverityHigh,
		}
		result.Valid = false
		result.Violations = append(result.Violations, violation)
		v.logResult("inline_style", result)
		if v.throwOnViolation {
			return result, &ViolationError{Violation: violation}
		}
	}

	return result, nil
}

// Policy returns a read-only copy of the directive map.
func (v *Validator) Policy() map[Directive][]string {
	out := make(map[Directive][]string, len(v.policy))
	for d, sources := range v.policy {
		cp := make([]string, len(sources))
		copy(cp, sources)
		out[d] = cp
	}
	return out
}

// PolicyString serializes the policy for transport to a cooperating host.
func (v *Validator) PolicyString() string {
	return serialize(v.policy)
}

// HasUnsafeDirectives reports whether any directive carries an unsafe
// escape token.
func (v *Validator) HasUnsafeDirectives() bool {
	for _, sources := range v.policy {
		for _, s := range sources {
			if s == SourceUnsafeInline || s == SourceUnsafeEval {
				return true
			}
		}
	}
	return false
}

// urlAllowed evaluates one URL against a source list. data: and
// scheme-relative URLs need an explicit grant; 'none' rejects everything.
func (v *Validator) urlAllowed(rawURL string, sources []string) bool {
	if len(sources) == 0 {
		return false
	}

	for _, s := range sources {
		if s == SourceNone {
			return false
		}
	}

	if strings.HasPrefix(rawURL, "data:") {
		for _, s := range sources {
			if s == SourceData {
				return true
			}
		}
		return false
	}

	schemeRelative := strings.HasPrefix(rawURL, "//")

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	// Relative URLs resolve against the hosting origin.
	relative := !schemeRelative && parsed.Scheme == "" && parsed.Host == ""

	for _, s := range sources {
		switch {
		case s == SourceAny:
			return true
		case s == SourceSelf:
			if relative {
				return true
			}
		case strings.HasSuffix(s, ":") && !strings.Contains(s, "//"):
			// Scheme token such as "https:".
			if parsed.Scheme != "" && parsed.Scheme+":" == s {
				return true
			}
		default:
			// Explicit origin such as "https://cdn.example.com".
			origin, err := url.Parse(s)
			if err != nil || origin.Host == "" {
				continue
			}
			if schemeRelative {
				if strings.TrimPrefix(rawURL, "//") == origin.Host ||
					strings.HasPrefix(strings.TrimPrefix(rawURL, "//"), origin.Host+"/") {
					return true
				}
				continue
			}
			if parsed.Scheme == origin.Scheme && parsed.Host == origin.Host {
				return true
			}
		}
	}

	return false
}

func (v *Validator) logResult(what string, result *Result) {
	if !v.debug {
		return
	}
	v.log.Debug("validation result",
		zap.String("target", what),
		zap.Bool("valid", result.Valid),
		zap.Int("violations", len(result.Violations)),
		zap.Int("warnings", len(result.Warnings)),
	)
}
