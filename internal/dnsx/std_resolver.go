package dnsx

import (
	"context"
	"net"
	"strings"
)

// StdResolver implements Resolver using the standard library net package.
// This is the default; use WireResolver when the caller needs control over
// nameservers or query behavior.
type StdResolver struct {
	resolver *net.Resolver
}

// NewStdResolver creates a resolver backed by net.DefaultResolver.
func NewStdResolver() *StdResolver {
	return &StdResolver{resolver: net.DefaultResolver}
}

// NewStdResolverWithDialer creates a resolver using a custom dialer,
// which allows pointing the stdlib resolver at specific DNS servers.
func NewStdResolverWithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) *StdResolver {
	return &StdResolver{
		resolver: &net.Resolver{
			PreferGo: true,
			Dial:     dial,
		},
	}
}

func (r *StdResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	ips, err := r.resolver.LookupIP(ctx, network, strings.TrimSuffix(host, "."))
	if err != nil {
		return nil, convertError(err)
	}
	if len(ips) == 0 {
		return nil, ErrNotFound
	}
	return ips, nil
}

func (r *StdResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	records, err := r.resolver.LookupMX(ctx, strings.TrimSuffix(domain, "."))
	if err != nil {
		// Stdlib may return partial results with an error for malformed
		// records; keep whatever resolved.
		if len(records) > 0 {
			return records, nil
		}
		return nil, convertError(err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *StdResolver) LookupTXT(ctx context.Context, domain string) ([]string, error) {
	records, err := r.resolver.LookupTXT(ctx, strings.TrimSuffix(domain, "."))
	if err != nil {
		return nil, convertError(err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *StdResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	cname, err := r.resolver.LookupCNAME(ctx, strings.TrimSuffix(host, "."))
	if err != nil {
		return "", convertError(err)
	}
	if cname == "" {
		return "", ErrNotFound
	}
	return strings.TrimSuffix(cname, "."), nil
}

func (r *StdResolver) LookupNS(ctx context.Context, domain string) ([]string, error) {
	records, err := r.resolver.LookupNS(ctx, strings.TrimSuffix(domain, "."))
	if err != nil {
		return nil, convertError(err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	hosts := make([]string, 0, len(records))
	for _, ns := range records {
		hosts = append(hosts, strings.TrimSuffix(ns.Host, "."))
	}
	return hosts, nil
}
