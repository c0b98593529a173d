package domain

import "strings"

// LabelWhitelist is the fixed set of domain labels a Classification's
// labels must be a subset of. Classifier output is lowercased and filtered
// through this set; unknown labels are dropped silently.
var LabelWhitelist = map[string]struct{}{
	"finance":          {},
	"banking":          {},
	"job-application":  {},
	"job-rejection":    {},
	"job-offer":        {},
	"meetings":         {},
	"promotions":       {},
	"receipts":         {},
	"spam":             {},
	"newsletter":       {},
	"shipping":         {},
	"travel":           {},
	"social":           {},
	"security":         {},
	"invoices":         {},
	"subscriptions":    {},
	"support":          {},
	"legal":            {},
	"healthcare":       {},
	"insurance":        {},
	"education":        {},
	"events":           {},
	"personal":         {},
	"work":             {},
	"notifications":    {},
	"surveys":          {},
	"marketing":        {},
	"utilities":        {},
	"taxes":            {},
	"real-estate":      {},
	"shopping":         {},
	"deliveries":       {},
	"reservations":     {},
	"government":       {},
	"donations":        {},
	"reminders":        {},
	"verification":     {},
	"password-reset":   {},
	"calendar":         {},
	"feedback":         {},
	"recruiting":       {},
}

// FilterLabelsToWhitelist lowercases and filters labels against the
// whitelist, dropping unknown labels silently, and deduplicating.
func FilterLabelsToWhitelist(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, raw := range labels {
		l := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := LabelWhitelist[l]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// IsWhitelistedLabel reports whether l (expected already lowercased) is a
// member of the label whitelist.
func IsWhitelistedLabel(l string) bool {
	_, ok := LabelWhitelist[l]
	return ok
}

// TermToLabel maps a question term or phrase to the label it names, used
// by the Query Classifier's term-map shortcut and the Classification
// Handler's label derivation. Keys are
// lowercase; multi-word keys take precedence over single-word ones via
// MatchLabelTerm's longest-match-first rule.
var TermToLabel = map[string]string{
	"finance":        "finance",
	"financial":      "finance",
	"bank":           "banking",
	"banking":        "banking",
	"job application": "job-application",
	"applied":        "job-application",
	"job rejection":  "job-rejection",
	"rejected":       "job-rejection",
	"job offer":      "job-offer",
	"offer letter":   "job-offer",
	"meeting":        "meetings",
	"meetings":       "meetings",
	"promotion":      "promotions",
	"promotions":     "promotions",
	"promo":          "promotions",
	"receipt":        "receipts",
	"receipts":       "receipts",
	"spam":           "spam",
	"newsletter":     "newsletter",
	"shipping":       "shipping",
	"shipment":       "shipping",
	"travel":         "travel",
	"trip":           "travel",
	"social":         "social",
	"security alert": "security",
	"security":       "security",
	"invoice":        "invoices",
	"invoices":       "invoices",
	"subscription":   "subscriptions",
	"subscriptions":  "subscriptions",
	"support":        "support",
	"legal":          "legal",
	"healthcare":     "healthcare",
	"health":         "healthcare",
	"insurance":      "insurance",
	"education":      "education",
	"course":         "education",
	"event":          "events",
	"events":         "events",
	"personal":       "personal",
	"work":           "work",
	"notification":   "notifications",
	"notifications":  "notifications",
	"survey":         "surveys",
	"surveys":        "surveys",
	"marketing":      "marketing",
	"utility":        "utilities",
	"utilities":      "utilities",
	"tax":            "taxes",
	"taxes":          "taxes",
	"real estate":    "real-estate",
	"shopping":       "shopping",
	"order":          "shopping",
	"delivery":       "deliveries",
	"deliveries":     "deliveries",
	"reservation":    "reservations",
	"reservations":   "reservations",
	"booking":        "reservations",
	"government":     "government",
	"donation":       "donations",
	"donations":      "donations",
	"reminder":       "reminders",
	"reminders":      "reminders",
	"verification":   "verification",
	"verify":         "verification",
	"password reset": "password-reset",
	"reset password": "password-reset",
	"calendar":       "calendar",
	"feedback":       "feedback",
	"recruiting":     "recruiting",
	"recruiter":      "recruiting",
}

// termsByLengthDesc holds TermToLabel's keys sorted longest-first, built
// once at init so MatchLabelTerm's longest-match-first rule is a cheap
// linear scan per call.
var termsByLengthDesc = sortedTermsByLength()

func sortedTermsByLength() []string {
	terms := make([]string, 0, len(TermToLabel))
	for t := range TermToLabel {
		terms = append(terms, t)
	}
	for i := 1; i < len(terms); i++ {
		for j := i; j > 0 && len(terms[j]) > len(terms[j-1]); j-- {
			terms[j], terms[j-1] = terms[j-1], terms[j]
		}
	}
	return terms
}

// MatchLabelTerm reports whether text contains a term mappable to a known
// label, checking longer (more specific) phrases before shorter ones first.
func MatchLabelTerm(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, term := range termsByLengthDesc {
		if strings.Contains(lower, term) {
			return TermToLabel[term], true
		}
	}
	return "", false
}
