// Package parse splits raw email addresses into local part and domain,
// handling internationalized addresses (RFC 6531 / EAI) and internationalized
// domain names (IDNA2008).
package parse

import (
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// Email is the internal representation of an address under validation.
// No ownership beyond the validation call: values are created fresh per call.
type Email struct {
	Raw           string // original, trimmed input
	Local         string // part before @
	Domain        string // part after @, ASCII/Punycode form (for DNS/SMTP)
	DomainUnicode string // part after @, Unicode form (for display/typo detection)
	Valid         bool   // false if Raw cannot be parsed
}

// NewEmail attempts to parse the given address. If parsing fails, Valid=false
// but Raw is always populated.
func NewEmail(raw string) Email {
	raw = strings.TrimSpace(raw)

	addr, err := mail.ParseAddress(raw)
	if err != nil {
		addr, err = mail.ParseAddress("<" + raw + ">")
	}
	var local, domain string
	if err == nil {
		parts := strings.SplitN(addr.Address, "@", 2)
		if len(parts) != 2 {
			return Email{Raw: raw}
		}
		local, domain = parts[0], parts[1]
	} else {
		// net/mail rejects Unicode local parts (RFC 6531 SMTPUTF8),
		// fall back to a manual split on the last @.
		at := strings.LastIndex(raw, "@")
		if at < 1 || at >= len(raw)-1 {
			return Email{Raw: raw}
		}
		local, domain = raw[:at], raw[at+1:]
	}
	if local == "" || domain == "" {
		return Email{Raw: raw}
	}

	ascii, display, ok := convertDomain(strings.ToLower(domain))
	if !ok {
		return Email{Raw: raw}
	}
	return Email{
		Raw:           raw,
		Local:         local,
		Domain:        ascii,
		DomainUnicode: display,
		Valid:         true,
	}
}

// SyntaxError returns a human-readable reason the address violates
// RFC 5321/5322 syntax constraints, or "" if the address is acceptable.
func (e Email) SyntaxError() string {
	if e.Raw == "" {
		return "empty email address"
	}
	if !e.Valid {
		return "invalid email syntax"
	}
	if len(e.Raw) > 254 {
		return "email address exceeds 254 characters"
	}
	if len(e.Local) > 64 {
		return "local part exceeds 64 characters"
	}
	if reason := localError(e.Local); reason != "" {
		return reason
	}
	return domainError(e.DomainUnicode)
}

// localError validates the local part. Allows RFC 5321 ASCII plus RFC 6531
// (SMTPUTF8) Unicode, and quoted-string locals wholesale.
func localError(local string) string {
	if strings.HasPrefix(local, `"`) && strings.HasSuffix(local, `"`) && len(local) >= 2 {
		return ""
	}
	const special = "!#$%&'*+/=?^_`{|}~-."
	for _, ch := range local {
		switch {
		case ch > 127:
			if unicode.IsControl(ch) {
				return "local part contains control character"
			}
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case strings.ContainsRune(special, ch):
		default:
			return "local part contains invalid character: " + string(ch)
		}
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return "local part cannot start or end with a dot"
	}
	if strings.Contains(local, "..") {
		return "local part cannot contain consecutive dots"
	}
	return ""
}

// domainError validates the domain part (Unicode form).
func domainError(domain string) string {
	if domain == "" {
		return "domain is empty"
	}
	// IP literal: [127.0.0.1] - accepted as-is
	if strings.HasPrefix(domain, "[") && strings.HasSuffix(domain, "]") {
		return ""
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "domain must have at least two labels"
	}
	for _, label := range labels {
		if label == "" {
			return "domain contains empty label (consecutive dots)"
		}
		if len(label) > 63 {
			return "domain label exceeds 63 characters"
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "domain label cannot start or end with a hyphen"
		}
		for _, ch := range label {
			if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '-' {
				return "domain label contains invalid character: " + string(ch)
			}
		}
	}
	tld := labels[len(labels)-1]
	if strings.IndexFunc(tld, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		return "TLD cannot be all digits"
	}
	return ""
}

// convertDomain converts a domain to both ASCII/Punycode and Unicode forms.
// ok is false if a non-ASCII domain fails IDNA2008 validation.
func convertDomain(domain string) (ascii, display string, ok bool) {
	nonASCII := false
	for _, r := range domain {
		if r > 127 {
			nonASCII = true
			break
		}
	}
	if nonASCII {
		a, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return "", "", false
		}
		return a, domain, true
	}
	// Pure ASCII: recover Unicode display form for existing Punycode labels
	u, err := idna.Display.ToUnicode(domain)
	if err != nil {
		u = domain
	}
	return domain, u, true
}
