package evidence

import (
	"net/url"
	"strings"

	"github.com/sells-group/placement-monitor/internal/normalize"
)

// hostOf returns the lower-cased host of a URL without "www.".
func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// canonicalURL is the de-duplication key for a result link: scheme, "www."
// and fragment dropped, trailing slash trimmed.
func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// hostWithin reports whether host is domain or one of its subdomains.
func hostWithin(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// namesFamily reports whether text contains one of the person's family-name
// forms as a whole word.
func namesFamily(text string, p normalize.PersonName) bool {
	words := normalize.Words(text)
	for _, f := range p.FamilyForms() {
		if normalize.ContainsPhrase(words, normalize.Words(f)) {
			return true
		}
	}
	return false
}

// namesPerson reports whether text contains the given name and a family-name
// form as whole words.
func namesPerson(text string, p normalize.PersonName) bool {
	if p.First == "" {
		return false
	}
	return normalize.ContainsPhrase(normalize.Words(text), normalize.Words(p.First)) && namesFamily(text, p)
}

func quoted(s string) string { return `"` + strings.ReplaceAll(s, `"`, "") + `"` }
