package check

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/optimode/deliverkit/internal/dnsx"
	"github.com/optimode/deliverkit/types"
)

// DNS failure codes.
const (
	CodeDomainNotFound   = "DOMAIN_NOT_FOUND"
	CodeNoMXRecords      = "NO_MX_RECORDS"
	CodeDNSTimeout       = "DNS_TIMEOUT"
	CodeDNSServerFailure = "DNS_SERVER_FAILURE"
	CodeDNSError         = "DNS_ERROR"
)

// DNSError is a classified DNS failure. It always wraps its cause so that
// nothing about the underlying lookup is silently swallowed.
type DNSError struct {
	Code  string
	cause error
}

func (e *DNSError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code
}

func (e *DNSError) Unwrap() error { return e.cause }

// DomainResolver performs DNS existence and MX lookups with timeout guards.
type DomainResolver struct {
	resolver dnsx.Resolver
	timeout  time.Duration
}

// NewDomainResolver creates a DomainResolver. A zero timeout defaults to 5s.
func NewDomainResolver(resolver dnsx.Resolver, timeout time.Duration) *DomainResolver {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &DomainResolver{resolver: resolver, timeout: timeout}
}

// CheckDomainExists resolves A records for the domain, falling back to AAAA
// for IPv6-only domains. It never returns an error: DNS failures collapse
// into the Exists/ErrorCode fields.
func (r *DomainResolver) CheckDomainExists(ctx context.Context, domain string) types.DomainCheck {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.resolver.LookupIP(ctx, "ip4", domain)
	if err == nil {
		return types.DomainCheck{Exists: true, HasARecord: true}
	}
	if errors.Is(err, dnsx.ErrNotFound) {
		return types.DomainCheck{Exists: false, ErrorCode: CodeDomainNotFound}
	}

	// Non-NXDOMAIN failure: try AAAA before giving up, the domain may be
	// IPv6-only or the A path transiently broken.
	if _, aaaaErr := r.resolver.LookupIP(ctx, "ip6", domain); aaaaErr == nil {
		return types.DomainCheck{Exists: true, HasARecord: false}
	}
	return types.DomainCheck{Exists: false, ErrorCode: classifyLookupErr(err)}
}

// LookupMX resolves the domain's MX set, sorted ascending by priority so the
// lowest-priority exchange is tried first. Failures are returned as a typed
// *DNSError wrapping the original cause.
func (r *DomainResolver) LookupMX(ctx context.Context, domain string) ([]types.MxRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	mxs, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, &DNSError{Code: r.classifyMXErr(ctx, domain, err), cause: err}
	}
	if len(mxs) == 0 {
		return nil, &DNSError{Code: CodeNoMXRecords, cause: dnsx.ErrNotFound}
	}

	records := make([]types.MxRecord, 0, len(mxs))
	for _, mx := range mxs {
		records = append(records, types.MxRecord{
			Exchange: strings.TrimSuffix(mx.Host, "."),
			Priority: mx.Pref,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Priority < records[j].Priority
	})
	return records, nil
}

// classifyMXErr distinguishes "domain does not exist" from "domain exists
// but publishes no MX": resolvers report both as not-found.
func (r *DomainResolver) classifyMXErr(ctx context.Context, domain string, err error) string {
	if errors.Is(err, dnsx.ErrNotFound) {
		if _, ipErr := r.resolver.LookupIP(ctx, "ip", domain); ipErr == nil {
			return CodeNoMXRecords
		}
		return CodeDomainNotFound
	}
	return classifyLookupErr(err)
}

func classifyLookupErr(err error) string {
	switch {
	case errors.Is(err, dnsx.ErrNotFound):
		return CodeDomainNotFound
	case errors.Is(err, dnsx.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeDNSTimeout
	case errors.Is(err, dnsx.ErrServFail), errors.Is(err, dnsx.ErrRefused):
		return CodeDNSServerFailure
	default:
		return CodeDNSError
	}
}
