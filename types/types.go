// Package types contains the shared types for deliverkit.
// This package does not import anything from other deliverkit packages
// to avoid circular imports.
package types

import "slices"

// Result classifies a validation outcome.
type Result = string

const (
	ResultValid    Result = "valid"
	ResultInvalid  Result = "invalid"
	ResultUnknown  Result = "unknown"
	ResultCatchall Result = "catchall"
	ResultRisky    Result = "risky"
)

// Flag constants accumulated during validation. Flags explain a verdict;
// they never change it on their own.
const (
	FlagSMTPConnectable    = "smtp_connectable"
	FlagUserUnknown        = "user_unknown"
	FlagCatchallDomain     = "catchall_domain"
	FlagAntiSpamPolicy     = "anti_spam_policy"
	FlagIPBlocked          = "ip_blocked"
	FlagValidationBlocked  = "validation_blocked"
	FlagServerNotReady     = "server_not_ready"
	FlagConnectionFailed   = "connection_failed"
	FlagMailFromRejected   = "mail_from_rejected"
	FlagPermanentError     = "permanent_error"
	FlagTemporaryFailure   = "temporary_failure"
	FlagServiceUnavailable = "service_unavailable"
	FlagUnexpectedResponse = "unexpected_response"
	FlagDisposableEmail    = "disposable_email"
	FlagInvalidFormat      = "invalid_format"
	FlagNoMXRecord         = "no_mx_record"
	FlagDomainNotFound     = "domain_not_found"
	FlagAssumedCatchall    = "assumed_catchall"
	FlagAggressiveOverride = "aggressive_override"
)

// Flags is an append-only set of diagnostic flags. Add preserves insertion
// order and drops duplicates.
type Flags []string

func (f Flags) Add(flag string) Flags {
	if f.Has(flag) {
		return f
	}
	return append(f, flag)
}

func (f Flags) Has(flag string) bool {
	return slices.Contains(f, flag)
}

func (f Flags) HasAny(flags ...string) bool {
	for _, flag := range flags {
		if f.Has(flag) {
			return true
		}
	}
	return false
}

// MxRecord is one mail exchange for a domain.
type MxRecord struct {
	Exchange string `json:"exchange"`
	Priority uint16 `json:"priority"`
}

// SMTPResponse is one parsed server reply.
type SMTPResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Verdict is the probe's classification of one recipient on one exchange.
type Verdict struct {
	IsValid bool   `json:"isValid"`
	Result  Result `json:"result"`
	Flags   Flags  `json:"flags,omitempty"`
	Message string `json:"message,omitempty"`
}

// DomainCheck reports whether a domain resolves at all.
type DomainCheck struct {
	Exists     bool   `json:"exists"`
	HasARecord bool   `json:"hasARecord"`
	ErrorCode  string `json:"errorCode,omitempty"`
}

// BounceRisk grades a domain's bounce track record.
type BounceRisk = string

const (
	BounceRiskLow    BounceRisk = "low"
	BounceRiskMedium BounceRisk = "medium"
	BounceRiskHigh   BounceRisk = "high"
)

// ConfidenceLevel buckets a confidence score.
type ConfidenceLevel = string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
)

// ConfidenceAssessment is the scored reconciliation of all gathered evidence.
type ConfidenceAssessment struct {
	Confidence        int             `json:"confidence"`
	Level             ConfidenceLevel `json:"level"`
	Reasoning         []string        `json:"reasoning,omitempty"`
	OverrideToInvalid bool            `json:"overrideToInvalid"`
}

// Reputation is the external risk signal for a domain.
type Reputation struct {
	BounceRisk  BounceRisk `json:"bounceRisk"`
	RiskFactors []string   `json:"riskFactors,omitempty"`
}

// Risk factor constants contributed by reputation providers and the DNS
// cascade.
const (
	RiskHighBounceProvider = "high_bounce_provider"
	RiskMXLookupFailed     = "mx_lookup_failed"
	RiskDomainNotFound     = "domain_not_found"
	RiskNoMXRecords        = "no_mx_records"
	RiskDNSIssues          = "dns_issues"
	RiskSimpleMXSetup      = "simple_mx_setup"
)

// Outcome is the full validation result for one address.
type Outcome struct {
	Email       string               `json:"email"`
	IsValid     bool                 `json:"isValid"`
	Result      Result               `json:"result"`
	Deliverable bool                 `json:"deliverable"`
	Flags       Flags                `json:"flags,omitempty"`
	Message     string               `json:"message,omitempty"`
	Confidence  ConfidenceAssessment `json:"confidence"`
	Suggestion  string               `json:"suggestion,omitempty"`
}

// CatchallReport summarises the synthetic-recipient probes for a domain.
type CatchallReport struct {
	IsCatchall bool    `json:"isCatchall"`
	Accepted   int     `json:"accepted"`
	Probes     int     `json:"probes"`
	Confidence float64 `json:"confidence"`
}

// FallbackReport is the result of the secondary DNS signal scan.
type FallbackReport struct {
	CanReceiveEmail bool   `json:"canReceiveEmail"`
	Confidence      int    `json:"confidence"`
	Method          string `json:"method,omitempty"`
	Details         string `json:"details,omitempty"`
}

// Capability is the raw DNS/MX/SMTP capability report from VerifyBasic.
type Capability struct {
	HasDNS          bool              `json:"hasDNS"`
	HasMX           bool              `json:"hasMX"`
	SMTPConnectable bool              `json:"smtpConnectable"`
	Details         map[string]string `json:"details,omitempty"`
}
