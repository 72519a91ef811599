package util

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/coldpaw/snatch/internal/config"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"]+`)

// SkipDNSLookup disables the resolver step of ValidateURL. Only meant
// for tests, where hostnames are synthetic.
var SkipDNSLookup = false

type URLValidation struct {
	Valid bool
	URL   string
	Error string
}

// ExtractURL returns the first absolute http(s) URL found in free text.
func ExtractURL(text string) (string, bool) {
	m := urlRe.FindString(text)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, `.,;:!?)'"`)
	return m, true
}

// ValidateURL decides whether a candidate URL is safe to hand to the
// downloader. Private, loopback, link-local and otherwise reserved
// targets are rejected for both address families, whether the host is
// an IP literal or resolves to one.
func ValidateURL(rawURL string) URLValidation {
	if rawURL == "" {
		return URLValidation{Valid: false, Error: "URL is required"}
	}
	if len(rawURL) > config.MaxURLLength {
		return URLValidation{Valid: false, Error: "URL is too long"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return URLValidation{Valid: false, Error: "Invalid URL format"}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return URLValidation{Valid: false, Error: "Only HTTP/HTTPS URLs are allowed"}
	}

	hostname := strings.ToLower(strings.TrimSuffix(parsed.Hostname(), "."))
	if isBlockedHostname(hostname) {
		return URLValidation{Valid: false, Error: "Private/local URLs are not allowed"}
	}

	if ip := parseIPHost(hostname); ip != nil {
		if isPrivateIP(ip) {
			return URLValidation{Valid: false, Error: "Private/local URLs are not allowed"}
		}
		return URLValidation{Valid: true, URL: parsed.String()}
	}

	if !SkipDNSLookup {
		ips, err := net.LookupIP(hostname)
		if err != nil || len(ips) == 0 {
			return URLValidation{Valid: false, Error: "Couldn't resolve that hostname"}
		}
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return URLValidation{Valid: false, Error: "Private/local URLs are not allowed"}
			}
		}
	}

	return URLValidation{Valid: true, URL: parsed.String()}
}

var localAliases = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
}

func isBlockedHostname(hostname string) bool {
	if hostname == "" || localAliases[hostname] {
		return true
	}
	for _, suffix := range config.LocalHostSuffixes {
		if strings.HasSuffix(hostname, suffix) {
			return true
		}
	}
	return false
}

func parseIPHost(hostname string) net.IP {
	if ip := net.ParseIP(hostname); ip != nil {
		return ip
	}
	return net.ParseIP(strings.Trim(hostname, "[]"))
}

var privateNets4 []*net.IPNet
var reservedNets6 []*net.IPNet
var globalUnicast6 *net.IPNet

func init() {
	cidrs4 := []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.0.2.0/24",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"224.0.0.0/4",
		"240.0.0.0/4",
	}
	for _, cidr := range cidrs4 {
		_, network, _ := net.ParseCIDR(cidr)
		privateNets4 = append(privateNets4, network)
	}

	cidrs6 := []string{
		"fc00::/7",
		"fe80::/10",
		"ff00::/8",
		"2001:db8::/32",
	}
	for _, cidr := range cidrs6 {
		_, network, _ := net.ParseCIDR(cidr)
		reservedNets6 = append(reservedNets6, network)
	}

	_, globalUnicast6, _ = net.ParseCIDR("2000::/3")
}

func isPrivateIP(ip net.IP) bool {
	// IPv4-mapped IPv6 addresses collapse here and get the IPv4 rules.
	if ip4 := ip.To4(); ip4 != nil {
		for _, network := range privateNets4 {
			if network.Contains(ip4) {
				return true
			}
		}
		return false
	}

	if ip.IsUnspecified() || ip.IsLoopback() {
		return true
	}
	for _, network := range reservedNets6 {
		if network.Contains(ip) {
			return true
		}
	}
	// Everything outside 2000::/3 is not publicly routable unicast.
	return !globalUnicast6.Contains(ip)
}
