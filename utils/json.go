package utils

import "encoding/json"

// MaxRawPayloadChars caps opaque raw/extracted payloads before persistence.
// The store treats them as uninterpreted bytes.
const MaxRawPayloadChars = 200000

// MarshalCapped marshals v and truncates the result to MaxRawPayloadChars.
// Marshal failures yield "" rather than an error; raw payloads are
// best-effort audit material.
func MarshalCapped(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return CapString(string(b), MaxRawPayloadChars)
}

func CapString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
