package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectingValidator() *Validator {
	return NewValidator(Config{ThrowOnViolation: false}, nil)
}

func TestValidateScriptClean(t *testing.T) {
	v := collectingValidator()

	scripts := []string{
		"const a = 1 + 2;",
		"ui.createElement('div'); ui.setText(id, 'hello');",
		"function evaluate(x) { return x * 2; }", // "evaluate" is not "eval("
		"const medieval = true;",
		"setTimeout(() => tick(), 100);",
	}

	for _, script := range scripts {
		result, err := v.ValidateScript(script)
		require.NoError(t, err)
		assert.True(t, result.Valid, "script should be clean: %s", script)
		assert.Empty(t, result.Violations)
	}
}

func TestValidateScriptDangerousPatterns(t *testing.T) {
	v := collectingValidator()

	tests := []struct {
		name   string
		script string
	}{
		{"eval call", "const x = eval('1+1');"},
		{"eval with spaces", "eval  ('code')"},
		{"function constructor", "const f = new Function('return 1');"},
		{"string setTimeout", "setTimeout('doThing()', 100);"},
		{"string setInterval", `setInterval("poll()", 1000);`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateScript(tt.script)
			require.NoError(t, err)
			assert.False(t, result.Valid)
			require.Len(t, result.Violations, 1, "exactly one violation per pattern")
			assert.Equal(t, SeverityHigh, result.Violations[0].Severity)
			assert.NotEmpty(t, result.Violations[0].Reason)
		})
	}
}

func TestValidateScriptThrowMode(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)

	// Two dangerous patterns; fail-fast must abort on the first.
	result, err := v.ValidateScript("eval('a'); new Function('b');")

	var verr *ViolationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, result.Valid)
	assert.Len(t, result.Violations, 1)
	assert.Equal(t, SeverityHigh, verr.Violation.Severity)
}

func TestValidateScriptInlineHandlerWarning(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)

	result, err := v.ValidateScript(`el.innerHTML = '<div onclick="go()">x</div>';`)
	require.NoError(t, err)
	assert.True(t, result.Valid, "inline handlers are a warning, not a violation")
	assert.Len(t, result.Warnings, 1)
}

func TestValidateURL(t *testing.T) {
	v := collectingValidator()

	tests := []struct {
		name      string
		url       string
		directive Directive
		valid     bool
	}{
		{"relative self img", "/assets/logo.png", DirectiveImgSrc, true},
		{"data image allowed", "data:image/png;base64,AAAA", DirectiveImgSrc, true},
		{"data script denied", "data:text/javascript,alert(1)", DirectiveScriptSrc, false},
		{"remote script denied", "https://evil.example/x.js", DirectiveScriptSrc, false},
		{"scheme-relative denied", "//cdn.example.com/x.js", DirectiveScriptSrc, false},
		{"worker denied outright", "/worker.js", DirectiveWorkerSrc, false},
		{"unknown directive falls back", "/style.css", Directive("frame-src"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateURL(tt.url, tt.directive)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
		})
	}
}

func TestValidateURLExplicitOrigin(t *testing.T) {
	v := NewValidator(Config{
		Policy: map[Directive][]string{
			DirectiveImgSrc: {SourceSelf, "https://cdn.example.com"},
		},
		ThrowOnViolation: false,
	}, nil)

	result, err := v.ValidateURL("https://cdn.example.com/pic.jpg", DirectiveImgSrc)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = v.ValidateURL("https://other.example.com/pic.jpg", DirectiveImgSrc)
	require.NoError(t, err)
	assert.False(t, result.Valid)

	// Scheme-relative URLs match an explicit origin's host.
	result, err = v.ValidateURL("//cdn.example.com/pic.jpg", DirectiveImgSrc)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateURLSchemeToken(t *testing.T) {
	v := NewValidator(Config{
		Policy: map[Directive][]string{
			DirectiveConnectSrc: {"https:"},
		},
		ThrowOnViolation: false,
	}, nil)

	result, err := v.ValidateURL("https://api.example.com/v1", DirectiveConnectSrc)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = v.ValidateURL("http://api.example.com/v1", DirectiveConnectSrc)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateInlineStyle(t *testing.T) {
	v := collectingValidator()

	result, err := v.ValidateInlineStyle("color: red; width: calc(100% - 2px)")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = v.ValidateInlineStyle("width: expression(document.body.clientWidth)")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, DirectiveStyleSrc, result.Violations[0].Directive)
}

func TestPolicyAccessors(t *testing.T) {
	v := NewValidator(DefaultConfig(), nil)

	policy := v.Policy()
	policy[DirectiveScriptSrc] = []string{SourceAny}

	// The mutation above must not leak into the validator.
	assert.Equal(t, []string{SourceSelf}, v.Policy()[DirectiveScriptSrc])

	s := v.PolicyString()
	assert.Contains(t, s, "script-src 'self'")
	assert.Contains(t, s, "worker-src 'none'")
}

func TestHasUnsafeDirectives(t *testing.T) {
	assert.False(t, NewValidator(DefaultConfig(), nil).HasUnsafeDirectives())

	v := NewValidator(Config{
		Policy: map[Directive][]string{
			DirectiveStyleSrc: {SourceSelf, SourceUnsafeInline},
		},
	}, nil)
	assert.True(t, v.HasUnsafeDirectives())
}
