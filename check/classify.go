package check

import (
	"strings"

	"github.com/optimode/deliverkit/types"
)

// Keyword lists for classifying free-text MTA banners. These are best-effort
// heuristics: banners vary by vendor and language, and non-English or unusual
// banners may be misclassified. The lists are kept as-is for stable behavior
// across releases; do not "improve" them without re-baselining verdicts.

// blockIndicators mark a greeting or rejection caused by the probing IP's
// reputation rather than the target address.
var blockIndicators = []string{
	"pbl",
	"spamhaus",
	"blocked",
	"blacklist",
	"rbl",
	"reputation",
	"connection refused",
	"access denied",
	"relay not permitted",
}

// userUnknownIndicators mark a definitive "no such mailbox" rejection.
var userUnknownIndicators = []string{
	"5.1.1",
	"user unknown",
	"no such user",
	"mailbox unavailable",
	"mailbox not found",
	"recipient not found",
	"invalid recipient",
	"address rejected",
	"does not exist",
	"unknown user",
}

// policyIndicators mark rejections driven by anti-spam policy, not by the
// mailbox's existence.
var policyIndicators = []string{
	"5.7.",
	"policy",
	"spam",
	"blocked",
	"greylist",
	"temporar",
	"tls",
	"starttls",
	"authentication required",
}

// catchallIndicators mark servers that announce wildcard acceptance.
var catchallIndicators = []string{
	"catch",
	"accept all",
	"wildcard",
}

func containsAny(message string, keywords []string) bool {
	message = strings.ToLower(message)
	for _, kw := range keywords {
		if strings.Contains(message, kw) {
			return true
		}
	}
	return false
}

// classifyGreeting handles a non-220 server greeting. A blocked probe is
// semantically "can't verify", not "address invalid", so the result is
// unknown either way.
func classifyGreeting(resp types.SMTPResponse, flags types.Flags) types.Verdict {
	flags = flags.Add(types.FlagServerNotReady)
	message := "server not ready"
	if containsAny(resp.Message, blockIndicators) {
		flags = flags.Add(types.FlagIPBlocked)
		flags = flags.Add(types.FlagValidationBlocked)
		message = "validation blocked by server policy"
	}
	return types.Verdict{
		Result:  types.ResultUnknown,
		Flags:   flags,
		Message: message,
	}
}

// classifyMailFrom handles a non-250 MAIL FROM response.
func classifyMailFrom(resp types.SMTPResponse, flags types.Flags) types.Verdict {
	lower := strings.ToLower(resp.Message)
	switch {
	case strings.Contains(lower, "spamhaus") || strings.Contains(lower, "block") || strings.Contains(lower, "pbl"):
		flags = flags.Add(types.FlagAntiSpamPolicy)
		flags = flags.Add(types.FlagIPBlocked)
	case containsAny(resp.Message, policyIndicators):
		flags = flags.Add(types.FlagAntiSpamPolicy)
	default:
		flags = flags.Add(types.FlagMailFromRejected)
	}
	return types.Verdict{
		Result:  types.ResultUnknown,
		Flags:   flags,
		Message: "MAIL FROM rejected: " + resp.Message,
	}
}

// classifyRcpt turns the RCPT TO response into the probe verdict. This is
// the decision point of the state machine.
func classifyRcpt(resp types.SMTPResponse, flags types.Flags) types.Verdict {
	var v types.Verdict

	switch {
	case resp.Code == 250:
		v = types.Verdict{
			IsValid: true,
			Result:  types.ResultValid,
			Message: "recipient accepted",
		}
	case resp.Code >= 550 && resp.Code <= 559:
		switch {
		case containsAny(resp.Message, userUnknownIndicators):
			flags = flags.Add(types.FlagUserUnknown)
			v = types.Verdict{
				Result:  types.ResultInvalid,
				Message: "recipient rejected: " + resp.Message,
			}
		case containsAny(resp.Message, policyIndicators):
			flags = flags.Add(types.FlagAntiSpamPolicy)
			v = types.Verdict{
				Result:  types.ResultUnknown,
				Message: "rejected by policy: " + resp.Message,
			}
		default:
			flags = flags.Add(types.FlagPermanentError)
			v = types.Verdict{
				Result:  types.ResultUnknown,
				Message: "permanent error: " + resp.Message,
			}
		}
	case resp.Code >= 450 && resp.Code <= 459:
		flags = flags.Add(types.FlagTemporaryFailure)
		v = types.Verdict{
			Result:  types.ResultUnknown,
			Message: "temporary failure: " + resp.Message,
		}
	case resp.Code == 421:
		flags = flags.Add(types.FlagServiceUnavailable)
		v = types.Verdict{
			Result:  types.ResultUnknown,
			Message: "service unavailable: " + resp.Message,
		}
	default:
		flags = flags.Add(types.FlagUnexpectedResponse)
		v = types.Verdict{
			Result:  types.ResultUnknown,
			Message: "unexpected response: " + resp.Message,
		}
	}

	// Catchall keyword override: applies regardless of the branch above,
	// including a plain 250 whose banner advertises wildcard acceptance.
	lower := strings.ToLower(resp.Message)
	if containsAny(resp.Message, catchallIndicators) ||
		(resp.Code == 250 && (strings.Contains(lower, "any") || strings.Contains(lower, "all"))) {
		flags = flags.Add(types.FlagCatchallDomain)
		v.IsValid = true
		v.Result = types.ResultCatchall
		v.Message = "server accepts all recipients"
	}

	// Policy wording is recorded even on acceptance; informational only.
	if strings.Contains(lower, "policy") || strings.Contains(lower, "spam") || strings.Contains(lower, "blocked") {
		flags = flags.Add(types.FlagAntiSpamPolicy)
	}

	v.Flags = flags
	return v
}
