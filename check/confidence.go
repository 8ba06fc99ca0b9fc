package check

import (
	"fmt"
	"slices"

	"github.com/optimode/deliverkit/types"
)

// ConfidenceInput carries the accumulated evidence for one validation call.
type ConfidenceInput struct {
	SMTPAccepted bool
	BounceRisk   types.BounceRisk
	Flags        types.Flags
	RiskFactors  []string
}

// flagPenalties are applied independently for each flag present.
var flagPenalties = []struct {
	flag    string
	penalty int
}{
	{types.FlagCatchallDomain, -25},
	{types.FlagDisposableEmail, -40},
	{types.FlagUserUnknown, -30},
	{types.FlagAntiSpamPolicy, -20},
	{types.FlagInvalidFormat, -50},
}

// riskPenalties are applied for each reputation risk factor present.
var riskPenalties = []struct {
	factor  string
	penalty int
}{
	{types.RiskHighBounceProvider, -20},
	{types.RiskMXLookupFailed, -30},
	{types.RiskDomainNotFound, -50},
	{types.RiskNoMXRecords, -40},
	{types.RiskDNSIssues, -25},
	{types.RiskSimpleMXSetup, -5},
}

// Confidence reconciles technical SMTP acceptance against domain-reputation
// risk into a 0-100 score, a bucketed level and an override decision.
// The function is pure: it only reads its input.
func Confidence(in ConfidenceInput) types.ConfidenceAssessment {
	score := 50
	var reasoning []string

	if in.SMTPAccepted {
		score += 30
		reasoning = append(reasoning, "SMTP server accepted the recipient (+30)")
	} else {
		score -= 40
		reasoning = append(reasoning, "SMTP server did not accept the recipient (-40)")
	}

	switch in.BounceRisk {
	case types.BounceRiskHigh:
		score -= 35
		reasoning = append(reasoning, "high bounce risk domain (-35)")
	case types.BounceRiskMedium:
		score -= 15
		reasoning = append(reasoning, "medium bounce risk domain (-15)")
	case types.BounceRiskLow:
		score += 10
		reasoning = append(reasoning, "low bounce risk domain (+10)")
	}

	for _, fp := range flagPenalties {
		if in.Flags.Has(fp.flag) {
			score += fp.penalty
			reasoning = append(reasoning, fmt.Sprintf("%s (%d)", fp.flag, fp.penalty))
		}
	}
	for _, rp := range riskPenalties {
		if slices.Contains(in.RiskFactors, rp.factor) {
			score += rp.penalty
			reasoning = append(reasoning, fmt.Sprintf("risk factor %s (%d)", rp.factor, rp.penalty))
		}
	}

	// A blocked probe is inconclusive, not evidence of invalidity.
	if in.Flags.HasAny(types.FlagIPBlocked, types.FlagValidationBlocked) && score < 20 {
		score = 20
		reasoning = append(reasoning, "validation was blocked; confidence floored at 20")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	level := confidenceLevel(score)
	return types.ConfidenceAssessment{
		Confidence:        score,
		Level:             level,
		Reasoning:         reasoning,
		OverrideToInvalid: shouldOverride(in, score, level),
	}
}

func confidenceLevel(score int) types.ConfidenceLevel {
	switch {
	case score >= 85:
		return types.ConfidenceVeryHigh
	case score >= 70:
		return types.ConfidenceHigh
	case score >= 50:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

func shouldOverride(in ConfidenceInput, score int, level types.ConfidenceLevel) bool {
	switch {
	case score <= 15 && level == types.ConfidenceLow:
		return true
	case in.Flags.HasAny(types.FlagDisposableEmail, types.FlagInvalidFormat,
		types.FlagNoMXRecord, types.FlagDomainNotFound):
		return true
	case in.BounceRisk == types.BounceRiskHigh && in.Flags.Has(types.FlagCatchallDomain) && in.SMTPAccepted:
		return true
	case in.Flags.Has(types.FlagUserUnknown) && score <= 25:
		return true
	case slices.Contains(in.RiskFactors, types.RiskDomainNotFound) && score <= 20:
		return true
	}
	return false
}
