package deliverkit

import "github.com/optimode/deliverkit/types"

// Conclusive reports whether the outcome is a definitive verdict rather
// than an "unknown" the caller may want to retry or treat specially.
func Conclusive(o types.Outcome) bool {
	return o.Result != types.ResultUnknown
}

// Blocked reports whether the probe was rejected for reasons unrelated to
// the target address (IP blocklists, relay policy). A blocked outcome means
// "could not verify", not "invalid".
func Blocked(o types.Outcome) bool {
	return o.Flags.HasAny(types.FlagIPBlocked, types.FlagValidationBlocked)
}
