package decode

import "unicode/utf8"

// Classify attempts a strict UTF-8 decode of a payload. On success the
// decoded text is returned verbatim, control characters included; the
// caller decides how to display it. On failure ok is false and the
// text is empty — the payload stays available as raw bytes.
func Classify(payload []byte) (text string, ok bool) {
	if !utf8.Valid(payload) {
		return "", false
	}
	return string(payload), true
}
