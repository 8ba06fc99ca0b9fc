package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/optimode/deliverkit/internal/attempt"
	"github.com/optimode/deliverkit/internal/dialer"
	"github.com/optimode/deliverkit/internal/dnsx"
	"github.com/optimode/deliverkit/types"
)

// mailSubdomains are the common mail-host prefixes probed concurrently
// by the fallback scanner.
var mailSubdomains = []string{"mail", "smtp", "mx", "mx1", "mx2"}

// txtMailKeywords hint that a TXT record belongs to a mail setup.
var txtMailKeywords = []string{"v=spf1", "spf", "dmarc", "dkim", "mail"}

// mailProviderKeywords match CNAME targets and NS hosts operated by known
// mail providers.
var mailProviderKeywords = []string{
	"google", "googlemail", "outlook", "office365", "microsoft",
	"zoho", "yandex", "protonmail", "mailgun", "sendgrid",
	"amazonses", "pphosted", "mimecast", "barracuda", "fastmail",
}

// FallbackConfig configures the fallback signal scanner.
type FallbackConfig struct {
	// LookupTimeout bounds each DNS lookup in the cascade. Default: 4s
	// (2s in constrained mode).
	LookupTimeout time.Duration
	// Constrained tightens timeouts and skips the direct SMTP connection,
	// for sandboxed execution environments where outbound port 25 stalls.
	Constrained bool
	// ConnectTimeout bounds the direct SMTP attempt. Default: 5s
	ConnectTimeout time.Duration
	// Logger for per-method events. Default: slog.Default()
	Logger *slog.Logger
}

func (c *FallbackConfig) applyDefaults() {
	if c.LookupTimeout == 0 {
		if c.Constrained {
			c.LookupTimeout = 2 * time.Second
		} else {
			c.LookupTimeout = 4 * time.Second
		}
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// FallbackScanner infers whether a domain can receive mail from secondary
// DNS signals. It is invoked only when the primary MX/SMTP path is unusable.
type FallbackScanner struct {
	resolver dnsx.Resolver
	est      *dialer.Establisher
	cfg      FallbackConfig
	log      *slog.Logger
}

// NewFallbackScanner creates a scanner on the given resolver and establisher.
func NewFallbackScanner(resolver dnsx.Resolver, est *dialer.Establisher, cfg FallbackConfig) *FallbackScanner {
	cfg.applyDefaults()
	return &FallbackScanner{resolver: resolver, est: est, cfg: cfg, log: cfg.Logger}
}

var errNoSignal = errors.New("fallback: no signal")

// Scan runs the ordered signal cascade and stops at the first hit. Each
// method's DNS failure is caught locally and never aborts the cascade; if
// nothing matches, the report says the domain cannot receive email with
// confidence 10.
func (s *FallbackScanner) Scan(ctx context.Context, domain string) types.FallbackReport {
	type method struct {
		name string
		fn   func(context.Context, string) (types.FallbackReport, error)
	}
	methods := []method{
		{"txt", s.scanTXT},
		{"direct_smtp", s.scanDirectSMTP},
		{"mail_subdomain", s.scanMailSubdomains},
		{"cname", s.scanCNAME},
		{"ns", s.scanNS},
	}

	rep, err := attempt.First(ctx, methods, func(ctx context.Context, m method) (types.FallbackReport, error) {
		rep, err := m.fn(ctx, domain)
		if err != nil {
			s.log.Debug("fallback method produced no signal", "method", m.name, "domain", domain, "err", err)
			return types.FallbackReport{}, err
		}
		rep.Method = m.name
		return rep, nil
	})
	if err != nil {
		return types.FallbackReport{
			CanReceiveEmail: false,
			Confidence:      10,
			Details:         "no mail-related DNS signals found",
		}
	}
	return rep
}

// scanTXT looks for SPF/DMARC/DKIM/mail keywords in TXT records.
func (s *FallbackScanner) scanTXT(ctx context.Context, domain string) (types.FallbackReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	records, err := s.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return types.FallbackReport{}, err
	}
	for _, txt := range records {
		if containsAny(txt, txtMailKeywords) {
			return types.FallbackReport{
				CanReceiveEmail: true,
				Confidence:      60,
				Details:         "mail-related TXT record present",
			}, nil
		}
	}
	return types.FallbackReport{}, errNoSignal
}

// scanDirectSMTP checks for an A record and, outside constrained
// environments, attempts an SMTP connection to the bare domain on port 25.
func (s *FallbackScanner) scanDirectSMTP(ctx context.Context, domain string) (types.FallbackReport, error) {
	if s.cfg.Constrained {
		return types.FallbackReport{}, errNoSignal
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	if _, err := s.resolver.LookupIP(lookupCtx, "ip4", domain); err != nil {
		return types.FallbackReport{}, err
	}

	res := s.est.Dial(ctx, domain, "25", s.cfg.ConnectTimeout)
	if !res.Success {
		return types.FallbackReport{}, fmt.Errorf("direct smtp: %w", res.Err)
	}
	_ = res.Conn.Close()
	return types.FallbackReport{
		CanReceiveEmail: true,
		Confidence:      75,
		Details:         "domain accepts SMTP connections directly",
	}, nil
}

// scanMailSubdomains resolves the common mail subdomains concurrently;
// the first resolvable one wins and the remainder is ignored.
func (s *FallbackScanner) scanMailSubdomains(ctx context.Context, domain string) (types.FallbackReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	found := make(chan string, len(mailSubdomains))
	done := make(chan struct{}, len(mailSubdomains))
	for _, sub := range mailSubdomains {
		go func(host string) {
			defer func() { done <- struct{}{} }()
			if _, err := s.resolver.LookupIP(ctx, "ip", host); err == nil {
				found <- host
			}
		}(sub + "." + domain)
	}

	for range mailSubdomains {
		select {
		case host := <-found:
			return types.FallbackReport{
				CanReceiveEmail: true,
				Confidence:      65,
				Details:         "mail subdomain resolves: " + host,
			}, nil
		case <-done:
		case <-ctx.Done():
			return types.FallbackReport{}, ctx.Err()
		}
	}
	// drain a late success that raced with the final done signal
	select {
	case host := <-found:
		return types.FallbackReport{
			CanReceiveEmail: true,
			Confidence:      65,
			Details:         "mail subdomain resolves: " + host,
		}, nil
	default:
	}
	return types.FallbackReport{}, errNoSignal
}

// scanCNAME checks whether the domain's canonical name points at a known
// mail provider.
func (s *FallbackScanner) scanCNAME(ctx context.Context, domain string) (types.FallbackReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	cname, err := s.resolver.LookupCNAME(ctx, domain)
	if err != nil {
		return types.FallbackReport{}, err
	}
	if cname != "" && !strings.EqualFold(cname, domain) && containsAny(cname, mailProviderKeywords) {
		return types.FallbackReport{
			CanReceiveEmail: true,
			Confidence:      55,
			Details:         "CNAME points at mail provider: " + cname,
		}, nil
	}
	return types.FallbackReport{}, errNoSignal
}

// scanNS checks whether the domain's nameservers are operated by a known
// mail provider.
func (s *FallbackScanner) scanNS(ctx context.Context, domain string) (types.FallbackReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	hosts, err := s.resolver.LookupNS(ctx, domain)
	if err != nil {
		return types.FallbackReport{}, err
	}
	for _, ns := range hosts {
		if containsAny(ns, mailProviderKeywords) {
			return types.FallbackReport{
				CanReceiveEmail: true,
				Confidence:      50,
				Details:         "nameserver operated by mail provider: " + ns,
			}, nil
		}
	}
	return types.FallbackReport{}, errNoSignal
}
