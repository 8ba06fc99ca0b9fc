package check

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/optimode/deliverkit/types"
)

// RecipientProber is the slice of SMTPProbe the detector needs; tests
// substitute a scripted implementation.
type RecipientProber interface {
	ProbeRecipient(ctx context.Context, email string, mx types.MxRecord) types.Verdict
}

// CatchallDetector estimates whether a domain accepts mail for any local
// part by probing synthetic recipients that cannot exist.
type CatchallDetector struct {
	probe  RecipientProber
	probes int
	// pause between probes. Politeness toward the target server, not a
	// correctness requirement; tests set it to zero.
	pause time.Duration
}

// NewCatchallDetector creates a detector with 3 probes and a 1s pause.
func NewCatchallDetector(probe RecipientProber) *CatchallDetector {
	return &CatchallDetector{probe: probe, probes: 3, pause: time.Second}
}

// NewCatchallDetectorWithPause overrides the politeness pause.
func NewCatchallDetectorWithPause(probe RecipientProber, pause time.Duration) *CatchallDetector {
	d := NewCatchallDetector(probe)
	d.pause = pause
	return d
}

// Detect probes the domain's exchange with synthetic recipients. A probe
// failure counts as a rejection, never as a detector failure: the report is
// always well-formed.
func (d *CatchallDetector) Detect(ctx context.Context, domain string, mx types.MxRecord) types.CatchallReport {
	accepted := 0
	for i := 0; i < d.probes; i++ {
		addr := syntheticAddress(domain)
		verdict := d.probe.ProbeRecipient(ctx, addr, mx)
		if verdict.IsValid {
			accepted++
		}

		if i < d.probes-1 && d.pause > 0 {
			select {
			case <-time.After(d.pause):
			case <-ctx.Done():
				return report(accepted, d.probes)
			}
		}
	}
	return report(accepted, d.probes)
}

func report(accepted, probes int) types.CatchallReport {
	return types.CatchallReport{
		IsCatchall: accepted >= 2,
		Accepted:   accepted,
		Probes:     probes,
		Confidence: float64(accepted) / float64(probes),
	}
}

// syntheticAddress builds a local part derived from the clock and a random
// UUID, guaranteed not to correspond to a real mailbox.
func syntheticAddress(domain string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("nx-%d-%s@%s", time.Now().UnixNano(), id, domain)
}
