package linkcheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizerRewritesBareApex(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)
	tests := map[string]string{
		"https://sf.gov":            "https://www.sf.gov/",
		"https://sf.gov/":           "https://www.sf.gov/",
		"http://SF.gov/":            "http://www.sf.gov/",
		"https://sf.gov/page":       "https://sf.gov/page",
		"https://sf.gov/?q=1":       "https://sf.gov/?q=1",
		"https://sf.gov/#top":       "https://sf.gov/#top",
		"https://sf.gov:8443/":      "https://sf.gov:8443/",
		"https://www.sf.gov/":       "https://www.sf.gov/",
		"https://data.sf.gov/":      "https://data.sf.gov/",
		"https://example.com/":      "https://example.com/",
		"https://user@sf.gov/":      "https://user@sf.gov/",
		"://not-a-url":              "://not-a-url",
		"https://notsf.gov/":        "https://notsf.gov/",
		"https://sf.gov?":           "https://sf.gov?",
		"https://sf.gov/index.html": "https://sf.gov/index.html",
	}
	for in, want := range tests {
		require.Equal(t, want, n.Normalize(in), in)
	}
}

func TestNormalizerTargetsKeepOriginal(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(map[string]string{"Example.org": "www.example.org"})
	targets := n.Targets([]string{"https://example.org", "https://sf.gov/"})
	require.Equal(t, []Target{
		{Original: "https://example.org", Probe: "https://www.example.org/"},
		{Original: "https://sf.gov/", Probe: "https://sf.gov/"},
	}, targets)
}

func TestNormalizerEmptyMapDisablesRewrites(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(map[string]string{})
	require.Equal(t, "https://sf.gov/", n.Normalize("https://sf.gov/"))
}
