package sandbox

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
)

// Resource is the UI resource record handed in by the load-script
// collaborator.
type Resource struct {
	MIMEType string
	Encoding string // "" for raw text, "base64" for pre-encoded payloads
	Payload  []byte
}

// ConfigError reports a malformed or missing script payload. It is a
// configuration problem, deliberately distinct from policy and resource
// errors: the invocation never starts.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("script configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("script configuration error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// scriptMIMEs are the declared content types accepted as executable
// script text.
var scriptMIMEs = map[string]struct{}{
	"text/javascript":        {},
	"application/javascript": {},
	"application/ecmascript": {},
	"text/ecmascript":        {},
	"text/plain":             {},
}

// Source is an immutable script payload plus its resolved content kind.
// Owned exclusively by the invocation running it.
type Source struct {
	text []byte
	mime string
}

// NewSource decodes a resource record into an executable source. Empty
// payloads, undecodable encodings, non-script content types and non-UTF-8
// text all fail with a *ConfigError.
func NewSource(res Resource) (*Source, error) {
	if len(res.Payload) == 0 {
		return nil, &ConfigError{Reason: "empty script payload"}
	}

	data := res.Payload
	switch res.Encoding {
	case "", "utf-8", "utf8":
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, &ConfigError{Reason: "payload is not valid base64", Err: err}
		}
		if len(decoded) == 0 {
			return nil, &ConfigError{Reason: "empty script payload"}
		}
		data = decoded
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported payload encoding %q", res.Encoding)}
	}

	mime := res.MIMEType
	if mime == "" {
		// Sniff when the collaborator did not declare a type.
		mime = mimetype.Detect(data).String()
	}
	base, _, _ := strings.Cut(mime, ";")
	base = strings.TrimSpace(base)
	if _, ok := scriptMIMEs[base]; !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("content type %q is not an executable script", base)}
	}

	if !utf8.Valid(data) {
		reason := "script payload is not valid UTF-8"
		if best, err := chardet.NewTextDetector().DetectBest(data); err == nil {
			reason = fmt.Sprintf("%s (detected charset %s)", reason, best.Charset)
		}
		return nil, &ConfigError{Reason: reason}
	}

	return &Source{text: data, mime: base}, nil
}

// Text returns the script text.
func (s *Source) Text() string { return string(s.text) }

// Bytes returns the raw script bytes.
func (s *Source) Bytes() []byte { return s.text }

// Size returns the script byte length.
func (s *Source) Size() int64 { return int64(len(s.text)) }

// MIME returns the resolved content type.
func (s *Source) MIME() string { return s.mime }
