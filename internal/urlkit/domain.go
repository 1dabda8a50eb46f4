package urlkit

import (
	"net"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
)

// Domain returns the registered domain (eTLD+1) of a URL. IP hosts are
// returned unchanged and URLs without a host yield "unknown".
func Domain(rawURL string) string {
	host := Host(rawURL)
	if host == "" {
		return "unknown"
	}
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// DomainTag is Domain with dots replaced, suitable for tags.
func DomainTag(rawURL string) string {
	return strings.ReplaceAll(Domain(rawURL), ".", "_")
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(domain, host string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	host = strings.ToLower(strings.TrimSpace(host))
	if domain == "" || host == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

var (
	blockedHosts    = set("localhost", "localhost.localdomain")
	blockedSuffixes = []string{".local", ".internal", ".lan", ".home"}
)

// ValidateExternalURL rejects URLs that are not plain http(s) or that point
// at local or private address space. DNS is not consulted.
func ValidateExternalURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return eris.Wrap(err, "urlkit: parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return eris.Errorf("urlkit: unsupported scheme %q", u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return eris.New("urlkit: missing hostname")
	}
	if blockedHosts[host] {
		return eris.Errorf("urlkit: local host %s is blocked", host)
	}
	for _, s := range blockedSuffixes {
		if strings.HasSuffix(host, s) {
			return eris.Errorf("urlkit: internal host %s is blocked", host)
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
			return eris.Errorf("urlkit: non-public ip %s is blocked", host)
		}
	}
	return nil
}

// RedactForLog strips query and fragment so tokens never reach the logs.
func RedactForLog(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	redacted := u.RawQuery != "" || u.Fragment != ""
	u.RawQuery = ""
	u.Fragment = ""
	if redacted {
		return u.String() + " [redacted]"
	}
	return u.String()
}
