// Package disposable detects throwaway email domains from an embedded list.
package disposable

import (
	_ "embed"
	"strings"
)

//go:embed list.txt
var rawList string

var domains map[string]struct{}

func init() {
	domains = make(map[string]struct{})
	for _, line := range strings.Split(rawList, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains[strings.ToLower(line)] = struct{}{}
	}
}

// IsDisposable reports whether the domain, or any parent of it, is a known
// disposable-mail domain. Subdomain matching catches providers that hand
// out per-user subdomains.
func IsDisposable(domain string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	for domain != "" {
		if _, ok := domains[domain]; ok {
			return true
		}
		dot := strings.Index(domain, ".")
		if dot < 0 {
			return false
		}
		domain = domain[dot+1:]
	}
	return false
}

// Count returns the number of embedded domains, for diagnostics.
func Count() int { return len(domains) }
