package deliverkit_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/deliverkit"
	"github.com/optimode/deliverkit/internal/dnsx"
	"github.com/optimode/deliverkit/types"
)

// rcptServer simulates an SMTP server on one end of a net.Pipe. The rcpt
// callback decides, per recipient address, what RCPT TO answers; everything
// else is accepted.
func rcptServer(server net.Conn, rcpt func(addr string) string) {
	defer func() { _ = server.Close() }()

	_, _ = fmt.Fprintf(server, "220 mx.example.com ESMTP\r\n")

	r := bufio.NewReader(server)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "RCPT TO:<"):
			addr := strings.TrimSuffix(strings.TrimPrefix(line, "RCPT TO:<"), ">")
			_, _ = fmt.Fprintf(server, "%s\r\n", rcpt(addr))
		case strings.HasPrefix(line, "QUIT"):
			_, _ = fmt.Fprintf(server, "221 Bye\r\n")
			return
		default:
			_, _ = fmt.Fprintf(server, "250 OK\r\n")
		}
	}
}

var testResolver = dnsx.MockResolver{
	A: map[string][]string{
		"example.com":    {"192.0.2.1"},
		"mx.example.com": {"192.0.2.10"},
	},
	MX: map[string][]*net.MX{
		"example.com": {{Host: "mx.example.com.", Pref: 10}},
	},
}

func newTestVerifier(rcpt func(addr string) string) *deliverkit.Verifier {
	return deliverkit.New().
		WithProbe(deliverkit.ProbeOptions{
			HeloDomain: "verifier.test",
			MailFrom:   "probe@verifier.test",
		}).
		WithResolver(testResolver).
		WithCatchallPause(0).
		WithDial(func(_ context.Context, _, _ string) (net.Conn, error) {
			client, server := net.Pipe()
			go rcptServer(server, rcpt)
			return client, nil
		})
}

// rejectSynthetic accepts the real recipient and rejects catchall probes.
func rejectSynthetic(addr string) string {
	if strings.HasPrefix(addr, "nx-") {
		return "550 5.1.1 User unknown"
	}
	return "250 OK"
}

func TestVerify_RequiresProbeOptions(t *testing.T) {
	_, err := deliverkit.New().Verify(context.Background(), "user@example.com")
	assert.ErrorIs(t, err, deliverkit.ErrInvalidProbeOptions)

	_, err = deliverkit.New().
		WithProbe(deliverkit.ProbeOptions{HeloDomain: "verifier.test"}).
		Verify(context.Background(), "user@example.com")
	assert.ErrorIs(t, err, deliverkit.ErrInvalidProbeOptions)
}

func TestVerify_InvalidFormat(t *testing.T) {
	v := newTestVerifier(rejectSynthetic)

	out, err := v.Verify(context.Background(), "not-an-email")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultInvalid, out.Result)
	assert.False(t, out.IsValid)
	assert.False(t, out.Deliverable)
	assert.True(t, out.Flags.Has(types.FlagInvalidFormat))
	assert.True(t, out.Confidence.OverrideToInvalid)
}

func TestVerify_Accepted(t *testing.T) {
	v := newTestVerifier(rejectSynthetic)

	out, err := v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultValid, out.Result)
	assert.True(t, out.IsValid)
	assert.True(t, out.Deliverable)
	assert.True(t, out.Flags.Has(types.FlagSMTPConnectable))
	assert.False(t, out.Flags.Has(types.FlagCatchallDomain))
	assert.Equal(t, 90, out.Confidence.Confidence)
	assert.Equal(t, types.ConfidenceVeryHigh, out.Confidence.Level)
	assert.True(t, deliverkit.Conclusive(out))
}

func TestVerify_CatchallUpgrade(t *testing.T) {
	v := newTestVerifier(func(string) string { return "250 OK" })

	out, err := v.Verify(context.Background(), "anything@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultCatchall, out.Result)
	assert.True(t, out.Deliverable)
	assert.True(t, out.Flags.Has(types.FlagCatchallDomain))
	// 50 +30 smtp +10 low risk -25 catchall
	assert.Equal(t, 65, out.Confidence.Confidence)
}

func TestVerify_UserUnknown(t *testing.T) {
	v := newTestVerifier(func(string) string { return "550 5.1.1 User unknown" })

	out, err := v.Verify(context.Background(), "ghost@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultInvalid, out.Result)
	assert.False(t, out.IsValid)
	assert.True(t, out.Flags.Has(types.FlagUserUnknown))
}

func TestVerify_RiskyDowngrade(t *testing.T) {
	v := newTestVerifier(rejectSynthetic).
		WithReputation(deliverkit.ReputationFunc(func(_ context.Context, _ string) (types.Reputation, error) {
			return types.Reputation{
				BounceRisk:  types.BounceRiskHigh,
				RiskFactors: []string{types.RiskHighBounceProvider},
			}, nil
		}))

	out, err := v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultRisky, out.Result)
	assert.True(t, out.IsValid, "SMTP acceptance stands even when risk downgrades the result")
	assert.False(t, out.Deliverable)
}

func TestVerify_ReputationFailureAssumesLowRisk(t *testing.T) {
	v := newTestVerifier(rejectSynthetic).
		WithReputation(deliverkit.ReputationFunc(func(_ context.Context, _ string) (types.Reputation, error) {
			return types.Reputation{}, assert.AnError
		}))

	out, err := v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultValid, out.Result)
	assert.Equal(t, 90, out.Confidence.Confidence)
}

func TestVerify_AggressiveOverride(t *testing.T) {
	v := newTestVerifier(func(string) string { return "550 5.1.1 User unknown" }).
		WithAggressiveMode()

	out, err := v.Verify(context.Background(), "ghost@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultInvalid, out.Result)
	assert.True(t, out.Flags.Has(types.FlagAggressiveOverride))
	assert.True(t, out.Confidence.OverrideToInvalid)
}

func TestVerify_AssumedCatchall(t *testing.T) {
	// Every RCPT TO is rejected by policy: the probe is inconclusive, catchall
	// detection cannot settle it, and the allow-list decides.
	v := newTestVerifier(func(string) string { return "554 5.7.1 rejected by policy" }).
		WithAssumedCatchall("example.com")

	out, err := v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultCatchall, out.Result)
	assert.True(t, out.IsValid)
	assert.True(t, out.Flags.Has(types.FlagAssumedCatchall))
	assert.True(t, out.Flags.Has(types.FlagCatchallDomain))
}

func TestVerify_AssumedCatchallAfterUnreachableMX(t *testing.T) {
	// The primary exchange refuses connections; the secondary answers with a
	// policy rejection. The connection failure on the first host must not
	// veto the catchall recovery driven by the second host's verdict.
	resolver := dnsx.MockResolver{
		A: map[string][]string{
			"example.com":     {"192.0.2.1"},
			"mx1.example.com": {"192.0.2.11"},
			"mx2.example.com": {"192.0.2.12"},
		},
		MX: map[string][]*net.MX{
			"example.com": {
				{Host: "mx1.example.com.", Pref: 5},
				{Host: "mx2.example.com.", Pref: 10},
			},
		},
	}
	v := deliverkit.New().
		WithProbe(deliverkit.ProbeOptions{HeloDomain: "verifier.test", MailFrom: "probe@verifier.test"}).
		WithResolver(resolver).
		WithCatchallPause(0).
		WithAssumedCatchall("example.com").
		WithDial(func(_ context.Context, _, address string) (net.Conn, error) {
			if address == "192.0.2.11:25" {
				return nil, fmt.Errorf("connection refused")
			}
			client, server := net.Pipe()
			go rcptServer(server, func(string) string { return "554 5.7.1 rejected by policy" })
			return client, nil
		})

	out, err := v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultCatchall, out.Result)
	assert.True(t, out.IsValid)
	assert.True(t, out.Flags.Has(types.FlagAssumedCatchall))
	// The first host's failure is still recorded on the outcome.
	assert.True(t, out.Flags.Has(types.FlagConnectionFailed))
}

func TestVerify_DomainNotFound(t *testing.T) {
	v := newTestVerifier(rejectSynthetic)

	out, err := v.Verify(context.Background(), "user@nxdomain.example")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultInvalid, out.Result)
	assert.True(t, out.Flags.Has(types.FlagDomainNotFound))
	assert.True(t, out.Confidence.OverrideToInvalid)
}

func TestVerify_NoMXFallsBack(t *testing.T) {
	resolver := dnsx.MockResolver{
		A:   map[string][]string{"nomx.example": {"192.0.2.5"}},
		TXT: map[string][]string{"nomx.example": {"v=spf1 -all"}},
	}
	v := deliverkit.New().
		WithProbe(deliverkit.ProbeOptions{HeloDomain: "verifier.test", MailFrom: "probe@verifier.test"}).
		WithResolver(resolver).
		WithConstrainedEnvironment().
		WithDial(func(_ context.Context, _, _ string) (net.Conn, error) {
			t.Error("no MX host should be dialed")
			return nil, assert.AnError
		})

	out, err := v.Verify(context.Background(), "user@nomx.example")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultUnknown, out.Result)
	assert.True(t, out.Flags.Has(types.FlagNoMXRecord))
	assert.Contains(t, out.Message, "NO_MX_RECORDS")
	assert.Contains(t, out.Message, "TXT")
}

func TestVerify_BlockedProbe(t *testing.T) {
	v := deliverkit.New().
		WithProbe(deliverkit.ProbeOptions{HeloDomain: "verifier.test", MailFrom: "probe@verifier.test"}).
		WithResolver(testResolver).
		WithCatchallPause(0).
		WithDial(func(_ context.Context, _, _ string) (net.Conn, error) {
			client, server := net.Pipe()
			go func() {
				defer func() { _ = server.Close() }()
				_, _ = fmt.Fprintf(server, "554 blocked, listed on Spamhaus RBL\r\n")
				buf := make([]byte, 256)
				_, _ = server.Read(buf) // QUIT
			}()
			return client, nil
		})

	out, err := v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, deliverkit.ResultUnknown, out.Result)
	assert.True(t, deliverkit.Blocked(out))
	// Blocked probes floor the confidence instead of condemning the address.
	assert.GreaterOrEqual(t, out.Confidence.Confidence, 20)
}

func TestVerify_DisposableDomain(t *testing.T) {
	resolver := dnsx.MockResolver{
		A: map[string][]string{
			"mailinator.com":    {"192.0.2.20"},
			"mx.mailinator.com": {"192.0.2.21"},
		},
		MX: map[string][]*net.MX{
			"mailinator.com": {{Host: "mx.mailinator.com.", Pref: 10}},
		},
	}
	v := deliverkit.New().
		WithProbe(deliverkit.ProbeOptions{HeloDomain: "verifier.test", MailFrom: "probe@verifier.test"}).
		WithResolver(resolver).
		WithCatchallPause(0).
		WithDial(func(_ context.Context, _, _ string) (net.Conn, error) {
			client, server := net.Pipe()
			go rcptServer(server, rejectSynthetic)
			return client, nil
		})

	out, err := v.Verify(context.Background(), "user@mailinator.com")
	require.NoError(t, err)

	assert.True(t, out.Flags.Has(types.FlagDisposableEmail))
	assert.True(t, out.Confidence.OverrideToInvalid)
}

func TestVerify_TypoSuggestion(t *testing.T) {
	v := newTestVerifier(rejectSynthetic)

	out, err := v.Verify(context.Background(), "user@gmial.com")
	require.NoError(t, err)

	assert.Equal(t, "gmail.com", out.Suggestion)

	out, err = v.Verify(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Empty(t, out.Suggestion)
}

func TestVerifyBasic(t *testing.T) {
	v := newTestVerifier(rejectSynthetic)

	cap, err := v.VerifyBasic(context.Background(), "user@example.com")
	require.NoError(t, err)

	assert.True(t, cap.HasDNS)
	assert.True(t, cap.HasMX)
	assert.True(t, cap.SMTPConnectable)
	assert.Empty(t, cap.Details)

	cap, err = v.VerifyBasic(context.Background(), "broken@@")
	require.NoError(t, err)
	assert.False(t, cap.HasDNS)
	assert.NotEmpty(t, cap.Details["syntax_error"])
}

func TestVerifyMany_PreservesOrder(t *testing.T) {
	v := newTestVerifier(rejectSynthetic)

	emails := []string{
		"zoe@example.com",
		"not-an-email",
		"adam@example.com",
	}
	outs, err := v.VerifyMany(context.Background(), emails, deliverkit.ConcurrencyOptions{Workers: 2})
	require.NoError(t, err)
	require.Len(t, outs, 3)

	assert.Equal(t, "zoe@example.com", outs[0].Email)
	assert.Equal(t, deliverkit.ResultValid, outs[0].Result)
	assert.Equal(t, "not-an-email", outs[1].Email)
	assert.Equal(t, deliverkit.ResultInvalid, outs[1].Result)
	assert.Equal(t, "adam@example.com", outs[2].Email)
	assert.Equal(t, deliverkit.ResultValid, outs[2].Result)
}
