package ops

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from script-supplied text and attribute values
// before they are enqueued. Element text is plain text by contract; any
// HTML a script smuggles into a SetText or SetAttribute value is removed
// rather than rejected.
type Sanitizer struct {
	strict *bluemonday.Policy
}

// NewSanitizer creates a sanitizer with a strict strip-everything policy.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{strict: bluemonday.StrictPolicy()}
}

// Text sanitizes element text content.
func (s *Sanitizer) Text(text string) string {
	return s.strict.Sanitize(text)
}

// AttributeValue sanitizes one attribute value. Control characters are
// dropped in addition to markup.
func (s *Sanitizer) AttributeValue(value string) string {
	clean := s.strict.Sanitize(value)
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' {
			return -1
		}
		return r
	}, clean)
}
