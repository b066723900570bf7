package linkcheck

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// domainPatterns matches hosts against exact names and suffix wildcards.
// "linkedin.com" matches the apex and every subdomain; "=linkedin.com"
// matches the apex only.
type domainPatterns struct {
	exact    map[string]string
	suffixes []suffixEntry
}

type suffixEntry struct {
	suffix string
	value  string
}

func newDomainPatterns(patterns map[string]string) *domainPatterns {
	matcher := &domainPatterns{exact: make(map[string]string)}
	for raw, value := range patterns {
		key := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case key == "":
			continue
		case strings.HasPrefix(key, "="):
			if host := strings.TrimPrefix(key, "="); host != "" {
				matcher.exact[host] = value
			}
		default:
			key = strings.TrimPrefix(strings.TrimPrefix(key, "*"), ".")
			if key != "" {
				matcher.addSuffix(key, value)
			}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (m *domainPatterns) addSuffix(suffix, value string) {
	for _, existing := range m.suffixes {
		if existing.suffix == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffixEntry{suffix: suffix, value: value})
}

// Lookup returns the value registered for host and whether one matched.
func (m *domainPatterns) Lookup(host string) (string, bool) {
	if m == nil {
		return "", false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return "", false
	}
	if v, ok := m.exact[host]; ok {
		return v, true
	}
	for _, entry := range m.suffixes {
		if host == entry.suffix || strings.HasSuffix(host, "."+entry.suffix) {
			return entry.value, true
		}
	}
	return "", false
}

// hostOf returns the lowercase ASCII hostname of raw, or "unknown" when it
// has none. Unicode hosts are converted to punycode so "bücher.de" and
// "xn--bcher-kva.de" share pacing and fail-fast entries.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		return ascii
	}
	return host
}
