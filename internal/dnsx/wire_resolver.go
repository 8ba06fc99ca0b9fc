package dnsx

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// WireConfig configures the wire-level resolver.
type WireConfig struct {
	// Nameservers to query, e.g. "8.8.8.8:53". If empty, servers from
	// /etc/resolv.conf are used, falling back to public DNS.
	Nameservers []string
	// Timeout for individual DNS queries. Default 5s.
	Timeout time.Duration
	// Retries for failed queries. Default 2.
	Retries int
}

// WireResolver implements Resolver using github.com/miekg/dns. It gives the
// caller direct control over nameservers, which matters in constrained
// execution environments where the system resolver is unreliable.
type WireResolver struct {
	config WireConfig
	client *mdns.Client
}

// NewWireResolver creates a wire-level DNS resolver.
func NewWireResolver(config WireConfig) *WireResolver {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 2
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = systemNameservers()
	}
	return &WireResolver{
		config: config,
		client: &mdns.Client{Timeout: config.Timeout},
	}
}

// systemNameservers reads nameservers from resolv.conf.
func systemNameservers() []string {
	config, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		if !strings.Contains(s, ":") {
			s += ":53"
		}
		servers = append(servers, s)
	}
	return servers
}

func fqdn(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

// query performs a DNS query with retries across the configured nameservers.
func (r *WireResolver) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	m := new(mdns.Msg)
	m.SetQuestion(fqdn(name), qtype)
	m.RecursionDesired = true

	var lastErr error
	for i := 0; i <= r.config.Retries; i++ {
		for _, server := range r.config.Nameservers {
			select {
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return nil, ErrTimeout
				}
				return nil, ctx.Err()
			default:
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = fmt.Errorf("dnsx: query failed: %w", err)
				continue
			}
			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp, nil
			case mdns.RcodeNameError:
				return nil, ErrNotFound
			case mdns.RcodeServerFailure:
				lastErr = ErrServFail
				continue
			case mdns.RcodeRefused:
				lastErr = ErrRefused
				continue
			default:
				lastErr = fmt.Errorf("dnsx: unexpected rcode %d", resp.Rcode)
				continue
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrServFail
}

func (r *WireResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	var ips []net.IP
	var lastErr error

	if network == "ip" || network == "ip4" {
		resp, err := r.query(ctx, host, mdns.TypeA)
		if err != nil {
			lastErr = err
		} else {
			for _, rr := range resp.Answer {
				if a, ok := rr.(*mdns.A); ok {
					ips = append(ips, a.A)
				}
			}
		}
	}
	if network == "ip" || network == "ip6" {
		resp, err := r.query(ctx, host, mdns.TypeAAAA)
		if err != nil {
			lastErr = err
		} else {
			for _, rr := range resp.Answer {
				if aaaa, ok := rr.(*mdns.AAAA); ok {
					ips = append(ips, aaaa.AAAA)
				}
			}
		}
	}

	if len(ips) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNotFound
	}
	return ips, nil
}

func (r *WireResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	resp, err := r.query(ctx, domain, mdns.TypeMX)
	if err != nil {
		return nil, err
	}
	var records []*net.MX
	for _, rr := range resp.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *WireResolver) LookupTXT(ctx context.Context, domain string) ([]string, error) {
	resp, err := r.query(ctx, domain, mdns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			// Long TXT records are split into character strings; rejoin
			// per RFC 7208 section 3.3.
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (r *WireResolver) LookupCNAME(ctx context.Context, host string) (string, error) {
	resp, err := r.query(ctx, host, mdns.TypeCNAME)
	if err != nil {
		return "", err
	}
	for _, rr := range resp.Answer {
		if cname, ok := rr.(*mdns.CNAME); ok {
			return strings.TrimSuffix(cname.Target, "."), nil
		}
	}
	return "", ErrNotFound
}

func (r *WireResolver) LookupNS(ctx context.Context, domain string) ([]string, error) {
	resp, err := r.query(ctx, domain, mdns.TypeNS)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*mdns.NS); ok {
			hosts = append(hosts, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	if len(hosts) == 0 {
		return nil, ErrNotFound
	}
	return hosts, nil
}
