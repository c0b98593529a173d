// Package mailtext extracts a readable plain-text body from a message's
// stored MIME payload tree. Shared by the Sync Controller's Classify+Embed
// step and the Context Builder's per-message
// rendering, which both need the same
// prefer-text/plain-over-snippet walk.
package mailtext

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/bbangmxn/mailintel/core/port/out"
)

// ExtractPlainText walks payload looking for a text/plain part,
// base64url-decoding and padding-correcting it; falls back to snippet
// when no plain-text part is found or payload can't be parsed.
func ExtractPlainText(payload []byte, snippet string) string {
	if len(payload) == 0 {
		return snippet
	}

	var part out.MailPart
	if err := json.Unmarshal(payload, &part); err != nil {
		return snippet
	}

	if text := findPlainText(&part); text != "" {
		return text
	}
	return snippet
}

func findPlainText(part *out.MailPart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Data != "" {
		if decoded, err := DecodeBase64URL(part.Data); err == nil && decoded != "" {
			return decoded
		}
	}
	for i := range part.Parts {
		if text := findPlainText(&part.Parts[i]); text != "" {
			return text
		}
	}
	return ""
}

// HasAttachment reports whether any MIME part in the tree looks like an
// attachment: a non-empty filename, or a Content-Disposition: attachment
// header.
func HasAttachment(part *out.MailPart) bool {
	if part == nil {
		return false
	}
	if part.Filename != "" {
		return true
	}
	if strings.Contains(strings.ToLower(part.Disposition), "attachment") {
		return true
	}
	for i := range part.Parts {
		if HasAttachment(&part.Parts[i]) {
			return true
		}
	}
	return false
}

// DecodeBase64URL decodes a Gmail-style base64url body, correcting for
// the padding Gmail strips from its output.
func DecodeBase64URL(s string) (string, error) {
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	decoded, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
