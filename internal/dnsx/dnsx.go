// Package dnsx abstracts DNS resolution behind a small interface so that
// probe components can run against the system resolver, a wire-level
// miekg/dns resolver with custom nameservers, or a mock in tests.
package dnsx

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors forming the lookup failure taxonomy. Callers classify with
// errors.Is; wrapped causes stay inspectable.
var (
	// ErrNotFound indicates NXDOMAIN: the name does not exist.
	ErrNotFound = errors.New("dnsx: name not found")
	// ErrTimeout indicates the query did not complete in time.
	ErrTimeout = errors.New("dnsx: lookup timed out")
	// ErrServFail indicates the upstream server failed to answer.
	ErrServFail = errors.New("dnsx: server failure")
	// ErrRefused indicates the upstream server refused the query.
	ErrRefused = errors.New("dnsx: query refused")
)

// Resolver is the lookup surface the validation engine needs.
// Implementations must honor context deadlines on every call.
type Resolver interface {
	// LookupIP resolves addresses for host. network is "ip", "ip4" or "ip6".
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	// LookupMX resolves mail exchanges for the domain, unsorted.
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
	// LookupTXT resolves TXT records, one string per record.
	LookupTXT(ctx context.Context, domain string) ([]string, error)
	// LookupCNAME resolves the canonical name for host.
	LookupCNAME(ctx context.Context, host string) (string, error)
	// LookupNS resolves the nameserver hosts for the domain.
	LookupNS(ctx context.Context, domain string) ([]string, error)
}

// convertError maps stdlib DNS errors onto the package taxonomy.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return ErrNotFound
		case dnsErr.IsTimeout:
			return ErrTimeout
		case dnsErr.IsTemporary:
			return ErrServFail
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
