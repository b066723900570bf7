package linkcheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Browser-like defaults sent with every probe to avoid naive bot filters.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxRedirects   = 5
	defaultMaxBodyBytes   = 64 << 10

	certificateNote = "TLS certificate could not be verified by the checker; browsers may still load this page"
	forbiddenNote   = "access forbidden; the site may block automated checks, review manually"
)

// ProberConfig controls HTTPProber behavior.
type ProberConfig struct {
	RequestTimeout time.Duration
	MaxRedirects   int
	UserAgent      string
	Accept         string
	AcceptLanguage string
	MaxBodyBytes   int64
}

func (c ProberConfig) withDefaults() ProberConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = defaultMaxRedirects
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Accept == "" {
		c.Accept = DefaultAccept
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// HTTPProber probes links with HEAD, falling back to GET.
type HTTPProber struct {
	cfg    ProberConfig
	client *http.Client
}

// NewHTTPProber builds a prober with its own pooled transport.
func NewHTTPProber(cfg ProberConfig) *HTTPProber {
	return newHTTPProber(cfg, newHTTPTransport())
}

func newHTTPProber(cfg ProberConfig, transport http.RoundTripper) *HTTPProber {
	cfg = cfg.withDefaults()
	maxRedirects := cfg.MaxRedirects
	return &HTTPProber{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

type probeOutcome struct {
	code     int
	finalURL string
	location string
}

// Probe checks target.Probe and reports against target.Original.
func (p *HTTPProber) Probe(ctx context.Context, target Target, pageURL string) Result {
	if isMixedContent(pageURL, target.Probe) {
		return Insecure(target.Original)
	}

	out, err := p.do(ctx, http.MethodHead, target.Probe)
	switch {
	case err != nil:
		if res, final := p.terminalError(target, err); final {
			return res
		}
		if ctx.Err() != nil {
			return p.classifyError(target, err)
		}
		out, err = p.do(ctx, http.MethodGet, target.Probe)
	case out.code == http.StatusMethodNotAllowed:
		out, err = p.do(ctx, http.MethodGet, target.Probe)
	}
	if err != nil {
		return p.classifyError(target, err)
	}
	return classifyResponse(target, out)
}

// terminalError reports failures that a GET retry cannot change.
func (p *HTTPProber) terminalError(target Target, err error) (Result, bool) {
	if isTimeout(err) || isCertificateError(err) {
		return p.classifyError(target, err), true
	}
	return Result{}, false
}

func (p *HTTPProber) classifyError(target Target, err error) Result {
	switch {
	case isTimeout(err):
		return TimedOut(target.Original, fmt.Sprintf("request timed out after %s", p.cfg.RequestTimeout))
	case isCertificateError(err):
		return OKWithNote(target.Original, certificateNote)
	case errors.Is(err, context.Canceled):
		return Failed(target.Original, "probe canceled")
	default:
		return Failed(target.Original, describeError(err))
	}
}

func classifyResponse(target Target, out probeOutcome) Result {
	code := out.code
	switch {
	case code >= 200 && code < 300:
		if !sameLocation(out.finalURL, target.Probe) {
			return Redirected(target.Original, out.finalURL, code)
		}
		return OK(target.Original, code)
	case code >= 300 && code < 400:
		final := out.location
		if final == "" {
			final = out.finalURL
		}
		return Redirected(target.Original, final, code)
	case code == http.StatusForbidden:
		return Warning(target.Original, code, forbiddenNote)
	case code >= 400:
		return Broken(target.Original, code)
	default:
		return Warning(target.Original, code, fmt.Sprintf("unexpected HTTP status %d", code))
	}
}

func (p *HTTPProber) do(ctx context.Context, method, rawURL string) (probeOutcome, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		return probeOutcome{}, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", p.cfg.Accept)
	req.Header.Set("Accept-Language", p.cfg.AcceptLanguage)

	resp, err := p.client.Do(req)
	if err != nil {
		return probeOutcome{}, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	// Drain a bounded prefix so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, p.cfg.MaxBodyBytes))

	out := probeOutcome{code: resp.StatusCode, finalURL: rawURL}
	if resp.Request != nil && resp.Request.URL != nil {
		out.finalURL = resp.Request.URL.String()
	}
	if loc, locErr := resp.Location(); locErr == nil {
		out.location = loc.String()
	}
	return out, nil
}

func isMixedContent(pageURL, link string) bool {
	page, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	target, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(page.Scheme, "https") && strings.EqualFold(target.Scheme, "http")
}

func sameLocation(a, b string) bool {
	if a == b {
		return true
	}
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	ua.Fragment, ub.Fragment = "", ""
	ua.RawFragment, ub.RawFragment = "", ""
	return strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host) &&
		ua.EscapedPath() == ub.EscapedPath() &&
		ua.RawQuery == ub.RawQuery
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return true
	}
	var hostname x509.HostnameError
	return errors.As(err, &hostname)
}

func describeError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS lookup failed: " + dnsErr.Err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Err != nil {
		return "connection failed: " + opErr.Err.Error()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
