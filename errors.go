package deliverkit

import "errors"

var (
	// ErrInvalidProbeOptions is returned when Verify is called but
	// ProbeOptions.HeloDomain or MailFrom is missing.
	ErrInvalidProbeOptions = errors.New("deliverkit: ProbeOptions requires HeloDomain and MailFrom")
)
