package linkcheck

import (
	"net/url"
	"strings"
)

// DefaultCanonicalHosts lists apex hosts known to redirect to a www form.
var DefaultCanonicalHosts = map[string]string{
	"sf.gov": "www.sf.gov",
}

// Normalizer rewrites known-equivalent hosts before probing so canonical-host
// redirects are not reported as link problems.
type Normalizer struct {
	canonical map[string]string
}

// NewNormalizer builds a Normalizer from an apex → canonical host map. A nil
// map selects DefaultCanonicalHosts.
func NewNormalizer(canonical map[string]string) *Normalizer {
	if canonical == nil {
		canonical = DefaultCanonicalHosts
	}
	hosts := make(map[string]string, len(canonical))
	for apex, target := range canonical {
		apex = strings.ToLower(strings.TrimSpace(apex))
		target = strings.ToLower(strings.TrimSpace(target))
		if apex != "" && target != "" {
			hosts[apex] = target
		}
	}
	return &Normalizer{canonical: hosts}
}

// Normalize returns the URL to probe for raw. Only bare root URLs on a
// configured apex host are rewritten; everything else passes through.
func (n *Normalizer) Normalize(raw string) string {
	if n == nil || len(n.canonical) == 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path != "" && u.Path != "/" {
		return raw
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" || u.User != nil {
		return raw
	}
	target, ok := n.canonical[strings.ToLower(u.Host)]
	if !ok {
		return raw
	}
	u.Host = target
	u.Path = "/"
	return u.String()
}

// Targets pairs each URL with its probe form, preserving input order.
func (n *Normalizer) Targets(urls []string) []Target {
	out := make([]Target, 0, len(urls))
	for _, raw := range urls {
		out = append(out, Target{Original: raw, Probe: n.Normalize(raw)})
	}
	return out
}
