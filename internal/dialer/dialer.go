// Package dialer establishes TCP connections to mail hosts using a
// Happy-Eyeballs-lite strategy: all addresses are resolved up front, IPv4 is
// preferred, and candidates are tried strictly sequentially under bounded
// per-attempt and overall timeouts.
package dialer

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/optimode/deliverkit/internal/attempt"
	"github.com/optimode/deliverkit/internal/dnsx"
)

// Transport-level error codes.
const (
	CodeTimeout         = "TIMEOUT"
	CodeDNSLookupFailed = "DNS_LOOKUP_FAILED"
	CodeConnectionError = "CONNECTION_ERROR"
)

const (
	minAttemptTimeout = 3 * time.Second
	maxAttemptTimeout = 7 * time.Second
)

// Result is the structured outcome of a dial. Dial never returns a Go error:
// a network failure is a value, not an exception. When Success is true the
// caller owns Conn and must close it on every exit path.
type Result struct {
	Success   bool
	Conn      net.Conn
	ErrorCode string
	Err       error
}

// Establisher resolves and connects to mail hosts.
type Establisher struct {
	resolver dnsx.Resolver
	// dial is injectable for tests. Defaults to net.Dialer.DialContext.
	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// New creates an Establisher on the given resolver.
func New(resolver dnsx.Resolver) *Establisher {
	d := &net.Dialer{}
	return &Establisher{resolver: resolver, dial: d.DialContext}
}

// NewWithDial creates an Establisher with a custom dial function.
func NewWithDial(resolver dnsx.Resolver, dial func(ctx context.Context, network, address string) (net.Conn, error)) *Establisher {
	return &Establisher{resolver: resolver, dial: dial}
}

// Dial connects to host:port within the overall timeout. Exactly one
// successful connection is ever returned; every other socket opened along
// the way is closed before the next candidate is tried.
func (e *Establisher) Dial(ctx context.Context, host, port string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := e.resolver.LookupIP(ctx, "ip", host)
	if err != nil || len(ips) == 0 {
		if err == nil {
			err = dnsx.ErrNotFound
		}
		return Result{ErrorCode: CodeDNSLookupFailed, Err: err}
	}

	// IPv4 before IPv6; preserve resolver order within each family.
	sort.SliceStable(ips, func(i, j int) bool {
		return ips[i].To4() != nil && ips[j].To4() == nil
	})

	perAttempt := clamp(timeout, minAttemptTimeout, maxAttemptTimeout)

	conn, err := attempt.First(ctx, ips, func(ctx context.Context, ip net.IP) (net.Conn, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
		defer cancel()
		return e.dial(attemptCtx, "tcp", net.JoinHostPort(ip.String(), port))
	})
	if err != nil {
		code := CodeConnectionError
		if ctx.Err() == context.DeadlineExceeded {
			code = CodeTimeout
		}
		return Result{ErrorCode: code, Err: err}
	}
	return Result{Success: true, Conn: conn}
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
