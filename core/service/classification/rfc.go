package classification

import (
	"strings"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/port/out"
)

// rfcShortCircuit inspects RFC headers for a strong, cheap signal that
// makes an LLM call unnecessary. Returns nil when no header gives a
// confident signal.
func rfcShortCircuit(headers []out.MailHeader) *Result {
	h := headerMap(headers)

	if v := h["list-unsubscribe"]; v != "" {
		return &Result{
			Labels:   []string{"newsletter"},
			Priority: domain.PriorityLow,
			Summary:  "Newsletter or mailing-list message (List-Unsubscribe header present).",
		}
	}

	if v := h["precedence"]; strings.EqualFold(v, "bulk") || strings.EqualFold(v, "junk") {
		priority := domain.PriorityLow
		labels := []string{"marketing"}
		if strings.EqualFold(v, "junk") {
			priority = domain.PriorityLow
			labels = []string{"spam"}
		}
		return &Result{
			Labels:   labels,
			Priority: priority,
			Summary:  "Bulk-precedence automated message.",
		}
	}

	if v := h["auto-submitted"]; v != "" && !strings.EqualFold(v, "no") {
		return &Result{
			Labels:   []string{"notifications"},
			Priority: domain.PriorityLow,
			Summary:  "Automated system notification (Auto-Submitted header present).",
		}
	}

	return nil
}

func headerMap(headers []out.MailHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[strings.ToLower(h.Name)] = h.Value
	}
	return m
}
