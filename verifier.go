package deliverkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optimode/deliverkit/check"
	"github.com/optimode/deliverkit/internal/dialer"
	"github.com/optimode/deliverkit/internal/disposable"
	"github.com/optimode/deliverkit/internal/dnsx"
	"github.com/optimode/deliverkit/internal/levenshtein"
	"github.com/optimode/deliverkit/internal/parse"
	"github.com/optimode/deliverkit/types"
)

// knownProviders feeds domain typo suggestions. A near-miss never changes
// the verdict, it only surfaces in Outcome.Suggestion.
var knownProviders = []string{
	"gmail.com", "googlemail.com",
	"yahoo.com", "yahoo.co.uk", "yahoo.fr", "yahoo.de",
	"outlook.com", "hotmail.com", "hotmail.co.uk", "live.com",
	"icloud.com", "me.com", "mac.com",
	"protonmail.com", "proton.me",
	"aol.com", "zoho.com",
	"yandex.com", "yandex.ru",
	"mail.com", "gmx.com", "gmx.net", "gmx.de",
	"fastmail.com", "tutanota.com",
}

// Verifier is the validation orchestrator. Build one with New() and the
// With... methods; it is safe for concurrent use once built.
type Verifier struct {
	resolver      dnsx.Resolver
	dial          func(ctx context.Context, network, address string) (net.Conn, error)
	log           *slog.Logger
	reputation    ReputationProvider
	probeOpts     ProbeOptions
	probeSet      bool
	dnsTimeout    time.Duration
	catchallPause time.Duration
	constrained   bool
	aggressive    bool
	assumed       map[string]struct{}

	buildOnce sync.Once
	err       error
	domains   *check.DomainResolver
	probe     *check.SMTPProbe
	catchall  *check.CatchallDetector
	fallback  *check.FallbackScanner
}

// New creates a Verifier with defaults: the system resolver, a neutral
// reputation provider and slog.Default(). Call WithProbe before Verify.
func New() *Verifier {
	return &Verifier{
		resolver:      dnsx.NewStdResolver(),
		log:           slog.Default(),
		reputation:    neutralReputation{},
		catchallPause: time.Second,
		assumed:       make(map[string]struct{}),
	}
}

// WithProbe sets the SMTP probe options. HeloDomain and MailFrom are required.
func (v *Verifier) WithProbe(opts ProbeOptions) *Verifier {
	v.probeOpts = opts
	v.probeSet = true
	return v
}

// WithResolver replaces the DNS resolver.
func (v *Verifier) WithResolver(r dnsx.Resolver) *Verifier {
	v.resolver = r
	return v
}

// WithNameservers switches to the wire-level resolver querying the given
// servers (e.g. "8.8.8.8:53") directly, bypassing the system resolver.
func (v *Verifier) WithNameservers(servers ...string) *Verifier {
	v.resolver = dnsx.NewWireResolver(dnsx.WireConfig{Nameservers: servers})
	return v
}

// WithReputation sets the external domain-reputation provider.
func (v *Verifier) WithReputation(p ReputationProvider) *Verifier {
	v.reputation = p
	return v
}

// WithLogger sets the logger used for probe-level events.
func (v *Verifier) WithLogger(l *slog.Logger) *Verifier {
	v.log = l
	return v
}

// WithDNSTimeout bounds each DNS lookup. Default: 5s.
func (v *Verifier) WithDNSTimeout(d time.Duration) *Verifier {
	v.dnsTimeout = d
	return v
}

// WithAggressiveMode makes Verify force low-confidence outcomes to invalid.
func (v *Verifier) WithAggressiveMode() *Verifier {
	v.aggressive = true
	return v
}

// WithAssumedCatchall registers domains treated as catchall when the probe
// is inconclusive and detection cannot settle it.
func (v *Verifier) WithAssumedCatchall(domains ...string) *Verifier {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			v.assumed[d] = struct{}{}
		}
	}
	return v
}

// WithConstrainedEnvironment tightens fallback timeouts and skips direct
// SMTP connections, for sandboxed environments where port 25 stalls.
func (v *Verifier) WithConstrainedEnvironment() *Verifier {
	v.constrained = true
	return v
}

// WithCatchallPause overrides the politeness pause between catchall probes.
func (v *Verifier) WithCatchallPause(d time.Duration) *Verifier {
	v.catchallPause = d
	return v
}

// WithDial overrides the TCP dial function. Intended for tests.
func (v *Verifier) WithDial(dial func(ctx context.Context, network, address string) (net.Conn, error)) *Verifier {
	v.dial = dial
	return v
}

// build wires the probe components on first use.
func (v *Verifier) build() error {
	v.buildOnce.Do(func() {
		if !v.probeSet || v.probeOpts.HeloDomain == "" || v.probeOpts.MailFrom == "" {
			v.err = ErrInvalidProbeOptions
			return
		}
		v.probeOpts.applyDefaults()

		var est *dialer.Establisher
		if v.dial != nil {
			est = dialer.NewWithDial(v.resolver, v.dial)
		} else {
			est = dialer.New(v.resolver)
		}

		v.domains = check.NewDomainResolver(v.resolver, v.dnsTimeout)
		v.probe = check.NewSMTPProbe(check.ProbeConfig{
			HeloDomain:          v.probeOpts.HeloDomain,
			MailFrom:            v.probeOpts.MailFrom,
			Port:                v.probeOpts.Port,
			ConnectTimeout:      v.probeOpts.ConnectTimeout,
			ReadTimeout:         v.probeOpts.ReadTimeout,
			TLSHandshakeTimeout: v.probeOpts.TLSHandshakeTimeout,
			Logger:              v.log,
		}, est)
		v.catchall = check.NewCatchallDetectorWithPause(v.probe, v.catchallPause)
		v.fallback = check.NewFallbackScanner(v.resolver, est, check.FallbackConfig{
			Constrained: v.constrained,
			Logger:      v.log,
		})
	})
	return v.err
}

// Verify runs the full validation sequence for one address: reputation
// signal, DNS cascade, SMTP probe, conditional catchall detection, and
// confidence scoring. Network failures never surface as errors; the returned
// error is only for configuration mistakes.
func (v *Verifier) Verify(ctx context.Context, email string) (types.Outcome, error) {
	if err := v.build(); err != nil {
		return types.Outcome{}, err
	}
	log := v.log.With("trace", uuid.NewString(), "email", email)

	out := types.Outcome{Email: email, Result: types.ResultUnknown}
	flags := types.Flags{}

	addr := parse.NewEmail(email)
	if reason := addr.SyntaxError(); reason != "" {
		flags = flags.Add(types.FlagInvalidFormat)
		out.Result = types.ResultInvalid
		out.Message = reason
		out.Flags = flags
		out.Confidence = check.Confidence(check.ConfidenceInput{Flags: flags})
		return out, nil
	}
	domain := addr.Domain
	target := addr.Local + "@" + domain

	if disposable.IsDisposable(domain) {
		flags = flags.Add(types.FlagDisposableEmail)
	}
	out.Suggestion = typoSuggestion(strings.ToLower(addr.DomainUnicode))

	rep, err := v.reputation.CheckDomainReputation(ctx, domain)
	if err != nil {
		log.Warn("reputation provider failed, assuming low risk", "err", err)
		rep = types.Reputation{BounceRisk: types.BounceRiskLow}
	}
	riskFactors := slices.Clone(rep.RiskFactors)

	dc := v.domains.CheckDomainExists(ctx, domain)
	if !dc.Exists {
		if dc.ErrorCode == check.CodeDomainNotFound {
			flags = flags.Add(types.FlagDomainNotFound)
			riskFactors = appendUnique(riskFactors, types.RiskDomainNotFound)
			out.Result = types.ResultInvalid
			out.Message = "domain does not exist"
			out.Flags = flags
			out.Confidence = check.Confidence(check.ConfidenceInput{
				BounceRisk: rep.BounceRisk, Flags: flags, RiskFactors: riskFactors,
			})
			return out, nil
		}
		// Transient DNS trouble; note it and let the MX lookup decide.
		riskFactors = appendUnique(riskFactors, types.RiskDNSIssues)
	}

	mxs, mxErr := v.domains.LookupMX(ctx, domain)
	if mxErr != nil {
		return v.verifyWithoutMX(ctx, log, out, flags, rep, riskFactors, domain, mxErr), nil
	}
	if len(mxs) == 1 {
		riskFactors = appendUnique(riskFactors, types.RiskSimpleMXSetup)
	}

	// Sequential MX retries, by design: never hammer multiple exchanges at
	// once. Stop at the first host that talks to us at all.
	maxHosts := min(v.probeOpts.MaxMXHosts, len(mxs))
	usable := mxs[0]
	var verdict types.Verdict
	for i := 0; i < maxHosts; i++ {
		verdict = v.probe.ProbeRecipient(ctx, target, mxs[i])
		for _, f := range verdict.Flags {
			flags = flags.Add(f)
		}
		if !verdict.Flags.Has(types.FlagConnectionFailed) {
			usable = mxs[i]
			break
		}
	}

	out.Result = verdict.Result
	out.IsValid = verdict.IsValid
	out.Deliverable = verdict.IsValid
	out.Message = verdict.Message

	switch {
	case verdict.Result == types.ResultValid && rep.BounceRisk == types.BounceRiskHigh:
		// Technically accepted, but the domain's track record says bounce.
		out.Result = types.ResultRisky
		out.Deliverable = false
		out.Message = "accepted by server but domain has high bounce risk"

	case verdict.IsValid:
		report := v.catchall.Detect(ctx, domain, usable)
		if report.IsCatchall {
			flags = flags.Add(types.FlagCatchallDomain)
			out.Result = types.ResultCatchall
			out.Deliverable = true
			out.Message = "domain accepts all recipients"
		}

	// Recoverability is judged on the answering host's own flags: a
	// connection failure on an earlier exchange that we already moved past
	// must not veto catchall detection.
	case verdict.Result == types.ResultUnknown && v.recoverableUnknown(verdict.Flags):
		report := v.catchall.Detect(ctx, domain, usable)
		switch {
		case report.IsCatchall:
			flags = flags.Add(types.FlagCatchallDomain)
			out.Result = types.ResultCatchall
			out.IsValid = true
			out.Deliverable = true
			out.Message = "domain accepts all recipients"
		case v.isAssumedCatchall(domain):
			flags = flags.Add(types.FlagAssumedCatchall)
			flags = flags.Add(types.FlagCatchallDomain)
			out.Result = types.ResultCatchall
			out.IsValid = true
			out.Deliverable = true
			out.Message = "domain configured as assumed catchall"
		}
	}

	smtpAccepted := verdict.IsValid || out.Result == types.ResultCatchall
	out.Confidence = check.Confidence(check.ConfidenceInput{
		SMTPAccepted: smtpAccepted,
		BounceRisk:   rep.BounceRisk,
		Flags:        flags,
		RiskFactors:  riskFactors,
	})

	if v.aggressive && out.Confidence.OverrideToInvalid {
		flags = flags.Add(types.FlagAggressiveOverride)
		out.Result = types.ResultInvalid
		out.IsValid = false
		out.Deliverable = false
		log.Debug("aggressive mode forced invalid", "confidence", out.Confidence.Confidence)
	}

	out.Flags = flags
	return out, nil
}

// verifyWithoutMX handles the path where MX resolution failed: classify the
// failure, then infer what we can from secondary DNS signals.
func (v *Verifier) verifyWithoutMX(ctx context.Context, log *slog.Logger, out types.Outcome,
	flags types.Flags, rep types.Reputation, riskFactors []string, domain string, mxErr error) types.Outcome {

	var dnsErr *check.DNSError
	code := check.CodeDNSError
	if errors.As(mxErr, &dnsErr) {
		code = dnsErr.Code
	}

	if code == check.CodeDomainNotFound {
		flags = flags.Add(types.FlagDomainNotFound)
		riskFactors = appendUnique(riskFactors, types.RiskDomainNotFound)
		out.Result = types.ResultInvalid
		out.Message = "domain does not exist"
		out.Flags = flags
		out.Confidence = check.Confidence(check.ConfidenceInput{
			BounceRisk: rep.BounceRisk, Flags: flags, RiskFactors: riskFactors,
		})
		return out
	}

	switch code {
	case check.CodeNoMXRecords:
		flags = flags.Add(types.FlagNoMXRecord)
		riskFactors = appendUnique(riskFactors, types.RiskNoMXRecords)
	default:
		riskFactors = appendUnique(riskFactors, types.RiskMXLookupFailed)
	}

	report := v.fallback.Scan(ctx, domain)
	log.Debug("mx unusable, fallback scan finished",
		"code", code, "method", report.Method, "confidence", report.Confidence)

	out.Result = types.ResultUnknown
	if report.CanReceiveEmail {
		out.Message = fmt.Sprintf("no usable MX (%s); %s", code, report.Details)
	} else {
		out.Message = fmt.Sprintf("no usable MX (%s) and no fallback mail signals", code)
	}

	out.Confidence = check.Confidence(check.ConfidenceInput{
		BounceRisk: rep.BounceRisk, Flags: flags, RiskFactors: riskFactors,
	})
	out.Confidence.Reasoning = append(out.Confidence.Reasoning,
		fmt.Sprintf("fallback scan: canReceiveEmail=%t confidence=%d", report.CanReceiveEmail, report.Confidence))

	if v.aggressive && out.Confidence.OverrideToInvalid {
		flags = flags.Add(types.FlagAggressiveOverride)
		out.Result = types.ResultInvalid
	}
	out.Flags = flags
	return out
}

// recoverableUnknown reports whether an unknown verdict came from server
// policy rather than a transport failure, making catchall detection worth
// attempting.
func (v *Verifier) recoverableUnknown(flags types.Flags) bool {
	if flags.Has(types.FlagConnectionFailed) {
		return false
	}
	return flags.HasAny(
		types.FlagAntiSpamPolicy,
		types.FlagTemporaryFailure,
		types.FlagServiceUnavailable,
		types.FlagPermanentError,
	)
}

func (v *Verifier) isAssumedCatchall(domain string) bool {
	_, ok := v.assumed[strings.ToLower(domain)]
	return ok
}

// VerifyBasic reports raw DNS/MX/SMTP capability for an address without
// classifying deliverability.
func (v *Verifier) VerifyBasic(ctx context.Context, email string) (types.Capability, error) {
	if err := v.build(); err != nil {
		return types.Capability{}, err
	}

	cap := types.Capability{Details: make(map[string]string)}

	addr := parse.NewEmail(email)
	if reason := addr.SyntaxError(); reason != "" {
		cap.Details["syntax_error"] = reason
		return cap, nil
	}

	dc := v.domains.CheckDomainExists(ctx, addr.Domain)
	cap.HasDNS = dc.Exists
	if !dc.Exists {
		cap.Details["dns_error"] = dc.ErrorCode
	}

	mxs, err := v.domains.LookupMX(ctx, addr.Domain)
	if err != nil {
		cap.Details["mx_error"] = err.Error()
		return cap, nil
	}
	cap.HasMX = true

	ok, detail := v.probe.CheckConnectable(ctx, mxs[0])
	cap.SMTPConnectable = ok
	if !ok {
		cap.Details["smtp_error"] = detail
	}
	return cap, nil
}

// VerifyMany validates multiple addresses concurrently with a bounded worker
// pool. Results match the input order; jobs are processed sorted by domain
// so probes against the same mail exchange cluster together.
func (v *Verifier) VerifyMany(ctx context.Context, emails []string, opts ...ConcurrencyOptions) ([]types.Outcome, error) {
	if err := v.build(); err != nil {
		return nil, err
	}

	workers := 5
	if len(opts) > 0 && opts[0].Workers > 0 {
		workers = opts[0].Workers
	}

	type job struct {
		idx    int
		email  string
		domain string
	}
	jobsSorted := make([]job, len(emails))
	for i, e := range emails {
		domain := ""
		if at := strings.LastIndex(e, "@"); at >= 0 {
			domain = strings.ToLower(e[at+1:])
		}
		jobsSorted[i] = job{idx: i, email: e, domain: domain}
	}
	sort.Slice(jobsSorted, func(i, j int) bool {
		return jobsSorted[i].domain < jobsSorted[j].domain
	})

	results := make([]types.Outcome, len(emails))
	jobs := make(chan job)
	go func() {
		defer close(jobs)
		for _, j := range jobsSorted {
			select {
			case jobs <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out, err := v.Verify(ctx, j.email)
				if err != nil {
					// Configuration errors were caught by build above;
					// record what happened and keep going.
					out = types.Outcome{Email: j.email, Result: types.ResultUnknown, Message: err.Error()}
				}
				results[j.idx] = out
			}
		}()
	}
	wg.Wait()
	return results, nil
}

func appendUnique(factors []string, factor string) []string {
	if slices.Contains(factors, factor) {
		return factors
	}
	return append(factors, factor)
}

// typoSuggestion returns the closest known provider within edit distance 2,
// or "" when the domain matches one exactly or nothing is close.
func typoSuggestion(domain string) string {
	const threshold = 2
	best := threshold + 1
	match := ""
	for _, provider := range knownProviders {
		if domain == provider {
			return ""
		}
		if d := levenshtein.Distance(domain, provider); d < best {
			best = d
			match = provider
		}
	}
	if best > threshold {
		return ""
	}
	return match
}
