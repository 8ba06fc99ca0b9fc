package deliverkit

import (
	"context"

	"github.com/optimode/deliverkit/types"
)

// ReputationProvider supplies the external domain-reputation signal
// reconciled against the SMTP result. The implementation and data source
// are the caller's business; the engine treats the signal as opaque.
type ReputationProvider interface {
	CheckDomainReputation(ctx context.Context, domain string) (types.Reputation, error)
}

// neutralReputation is the default provider: low risk, no factors.
type neutralReputation struct{}

func (neutralReputation) CheckDomainReputation(context.Context, string) (types.Reputation, error) {
	return types.Reputation{BounceRisk: types.BounceRiskLow}, nil
}

// ReputationFunc adapts a plain function to the ReputationProvider interface.
type ReputationFunc func(ctx context.Context, domain string) (types.Reputation, error)

func (f ReputationFunc) CheckDomainReputation(ctx context.Context, domain string) (types.Reputation, error) {
	return f(ctx, domain)
}
