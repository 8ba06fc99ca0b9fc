// Package deliverkit determines, without delivering mail, whether an email
// address is likely deliverable. It combines DNS existence and MX resolution,
// a real SMTP probe (EHLO / STARTTLS / MAIL FROM / RCPT TO), heuristic
// classification of server responses, catchall-domain detection, and a
// confidence score reconciling technical acceptance against domain
// reputation.
//
// Basic usage:
//
//	v := deliverkit.New().WithProbe(deliverkit.ProbeOptions{
//	    HeloDomain: "myapp.com",
//	    MailFrom:   "verify@myapp.com",
//	})
//	outcome, err := v.Verify(ctx, "user@example.com")
//
// The engine never delivers mail, keeps no validation history, and does no
// rate limiting across callers; pacing is the caller's responsibility.
package deliverkit

import "github.com/optimode/deliverkit/types"

// Re-exports from the types package so that consumers don't need to import
// the types package directly.
type (
	Outcome              = types.Outcome
	Verdict              = types.Verdict
	Flags                = types.Flags
	MxRecord             = types.MxRecord
	Capability           = types.Capability
	ConfidenceAssessment = types.ConfidenceAssessment
	Reputation           = types.Reputation
)

// Result constants re-exported.
const (
	ResultValid    = types.ResultValid
	ResultInvalid  = types.ResultInvalid
	ResultUnknown  = types.ResultUnknown
	ResultCatchall = types.ResultCatchall
	ResultRisky    = types.ResultRisky
)
