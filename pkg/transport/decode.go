package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// BodyKind says how a response body was interpreted.
type BodyKind int

const (
	// BodyEmpty is a 204 response; Value is nil.
	BodyEmpty BodyKind = iota

	// BodyJSON is a body that parsed as JSON; Value holds the generic
	// decoding (map[string]any, []any, string, float64, bool or nil).
	BodyJSON

	// BodyText is a body that did not parse as JSON; Value holds the raw
	// text as a string.
	BodyText
)

// String returns the kind name used in logs and envelopes.
func (k BodyKind) String() string {
	switch k {
	case BodyEmpty:
		return "empty"
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	default:
		return "unknown"
	}
}

// Body is a decoded response body. Raw keeps the bytes for typed decoding.
type Body struct {
	Kind  BodyKind
	Value any
	Raw   []byte

	// Degraded is set when a JSON content type carried a body that did not
	// parse and was kept as text instead.
	Degraded bool
}

// Clone returns a copy of b that shares no memory with it. JSON values are
// decoded again from the copied bytes; text values are immutable strings.
func (b Body) Clone() Body {
	out := b
	if b.Raw != nil {
		out.Raw = bytes.Clone(b.Raw)
	}
	if b.Kind == BodyJSON {
		var value any
		if err := json.Unmarshal(out.Raw, &value); err == nil {
			out.Value = value
		}
	}
	return out
}

// Decode interprets a response body. It never fails: anything that is not
// valid JSON degrades to text.
//
//   - 204 yields BodyEmpty
//   - a content type containing application/json is parsed as JSON
//   - any other body is tried as JSON and kept as text when that fails
func Decode(status int, contentType string, raw []byte) Body {
	if status == http.StatusNoContent {
		return Body{Kind: BodyEmpty}
	}

	declaredJSON := IsJSONContentType(contentType)

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return Body{Kind: BodyText, Value: string(raw), Raw: raw, Degraded: declaredJSON}
	}
	return Body{Kind: BodyJSON, Value: value, Raw: raw}
}

// IsJSONContentType reports whether a Content-Type header declares JSON.
func IsJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
