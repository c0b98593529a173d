package sync

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/mailtext"
)

var angleBracketEmail = regexp.MustCompile(`<([^>]+)>`)

// parseEmailAddress extracts the bare address from a "Name <addr>" header
// value, grounded on a convertMessage address-parsing helper,
// falling back to the raw value when there's no angle-bracket form.
func parseEmailAddress(raw string) string {
	if m := angleBracketEmail.FindStringSubmatch(raw); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

func headerValue(headers map[string]string, name string) string {
	return headers[strings.ToLower(name)]
}

func headersFromMap(headers map[string]string) []out.MailHeader {
	result := make([]out.MailHeader, 0, len(headers))
	for name, value := range headers {
		result = append(result, out.MailHeader{Name: name, Value: value})
	}
	return result
}

// convertPayload turns a freshly fetched provider payload into the
// persisted Message shape, deriving sender/recipient/subject from headers
// and attachment presence from the MIME tree.
func convertPayload(p *out.MailPayload) (*domain.Message, error) {
	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}

	return &domain.Message{
		ID:         p.ID,
		ThreadID:   p.ThreadID,
		Sender:     parseEmailAddress(headerValue(headers, "from")),
		Recipient:  parseEmailAddress(headerValue(headers, "to")),
		Subject:    headerValue(headers, "subject"),
		Snippet:    p.Snippet,
		Labels:     p.Labels,
		InternalTS: p.InternalTS,
		Payload:    payloadBytes,
		Headers:    headers,
		HasAttach:  hasAttachment(&p.Payload),
		IngestedAt: time.Now(),
	}, nil
}

// hasAttachment reports whether any MIME part in the tree looks like an
// attachment: a non-empty filename, or a Content-Disposition: attachment
// header. Delegates to mailtext, which the
// Context Builder also uses for its own payload walk.
func hasAttachment(part *out.MailPart) bool {
	return mailtext.HasAttachment(part)
}

// extractPlainTextBody walks a persisted message's payload tree looking
// for a text/plain part, base64url-decoding and padding-correcting it;
// falls back to the snippet when no plain-text part is found or the
// payload can't be parsed.
func extractPlainTextBody(msg *domain.Message) string {
	return mailtext.ExtractPlainText(msg.Payload, msg.Snippet)
}

// decodeBase64URL decodes a Gmail-style base64url body, correcting for
// the padding Gmail strips from its output.
func decodeBase64URL(s string) (string, error) {
	return mailtext.DecodeBase64URL(s)
}
