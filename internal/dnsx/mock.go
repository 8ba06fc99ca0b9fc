package dnsx

import (
	"context"
	"net"
	"slices"
)

// MockResolver is a Resolver for tests. Record maps are keyed by name
// without a trailing dot.
type MockResolver struct {
	A     map[string][]string
	AAAA  map[string][]string
	MX    map[string][]*net.MX
	TXT   map[string][]string
	CNAME map[string]string
	NS    map[string][]string

	// Timeout lists "type name" pairs (e.g. "mx example.com") that return
	// ErrTimeout. ServFail works the same for ErrServFail.
	Timeout  []string
	ServFail []string
}

var _ Resolver = MockResolver{}

func (m MockResolver) check(ctx context.Context, qtype, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := qtype + " " + name
	if slices.Contains(m.Timeout, key) {
		return ErrTimeout
	}
	if slices.Contains(m.ServFail, key) {
		return ErrServFail
	}
	return nil
}

func (m MockResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	var out []net.IP
	if network == "ip" || network == "ip4" {
		if err := m.check(ctx, "a", host); err != nil {
			return nil, err
		}
		for _, s := range m.A[host] {
			out = append(out, net.ParseIP(s))
		}
	}
	if network == "ip" || network == "ip6" {
		if err := m.check(ctx, "aaaa", host); err != nil {
			return nil, err
		}
		for _, s := range m.AAAA[host] {
			out = append(out, net.ParseIP(s))
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (m MockResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	if err := m.check(ctx, "mx", domain); err != nil {
		return nil, err
	}
	records := m.MX[domain]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (m MockResolver) LookupTXT(ctx context.Context, domain string) ([]string, error) {
	if err := m.check(ctx, "txt", domain); err != nil {
		return nil, err
	}
	records := m.TXT[domain]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (m MockResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	if err := m.check(ctx, "cname", host); err != nil {
		return "", err
	}
	cname := m.CNAME[host]
	if cname == "" {
		return "", ErrNotFound
	}
	return cname, nil
}

func (m MockResolver) LookupNS(ctx context.Context, domain string) ([]string, error) {
	if err := m.check(ctx, "ns", domain); err != nil {
		return nil, err
	}
	hosts := m.NS[domain]
	if len(hosts) == 0 {
		return nil, ErrNotFound
	}
	return hosts, nil
}
