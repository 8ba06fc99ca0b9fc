package dialer_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/deliverkit/internal/dialer"
	"github.com/optimode/deliverkit/internal/dnsx"
)

func resolver(a, aaaa []string) dnsx.MockResolver {
	return dnsx.MockResolver{
		A:    map[string][]string{"mx.example.com": a},
		AAAA: map[string][]string{"mx.example.com": aaaa},
	}
}

func TestDial_Success(t *testing.T) {
	var dialed []string
	est := dialer.NewWithDial(resolver([]string{"192.0.2.1"}, nil),
		func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = append(dialed, address)
			c, _ := net.Pipe()
			return c, nil
		})

	res := est.Dial(context.Background(), "mx.example.com", "25", 5*time.Second)
	assert.True(t, res.Success)
	assert.NotNil(t, res.Conn)
	assert.Equal(t, []string{"192.0.2.1:25"}, dialed)
	_ = res.Conn.Close()
}

func TestDial_IPv4Preferred(t *testing.T) {
	var dialed []string
	est := dialer.NewWithDial(resolver([]string{"192.0.2.1"}, []string{"2001:db8::1"}),
		func(ctx context.Context, network, address string) (net.Conn, error) {
			dialed = append(dialed, address)
			return nil, fmt.Errorf("refused")
		})

	res := est.Dial(context.Background(), "mx.example.com", "25", 5*time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, dialer.CodeConnectionError, res.ErrorCode)
	// Both families resolved; IPv4 must be dialed before IPv6.
	assert.Equal(t, []string{"192.0.2.1:25", "[2001:db8::1]:25"}, dialed)
}

func TestDial_SequentialFallback(t *testing.T) {
	attempts := 0
	est := dialer.NewWithDial(resolver([]string{"192.0.2.1", "192.0.2.2"}, nil),
		func(ctx context.Context, network, address string) (net.Conn, error) {
			attempts++
			if address == "192.0.2.2:25" {
				c, _ := net.Pipe()
				return c, nil
			}
			return nil, fmt.Errorf("refused")
		})

	res := est.Dial(context.Background(), "mx.example.com", "25", 5*time.Second)
	assert.True(t, res.Success)
	assert.Equal(t, 2, attempts)
	_ = res.Conn.Close()
}

func TestDial_DNSLookupFailed(t *testing.T) {
	est := dialer.NewWithDial(dnsx.MockResolver{},
		func(ctx context.Context, network, address string) (net.Conn, error) {
			t.Fatal("dial should not be reached")
			return nil, nil
		})

	res := est.Dial(context.Background(), "missing.example.com", "25", 5*time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, dialer.CodeDNSLookupFailed, res.ErrorCode)
	assert.ErrorIs(t, res.Err, dnsx.ErrNotFound)
}

func TestDial_OverallTimeoutPreempts(t *testing.T) {
	// Every address hangs; the overall timer must still fire on time.
	est := dialer.NewWithDial(resolver([]string{"192.0.2.1", "192.0.2.2", "192.0.2.3"}, nil),
		func(ctx context.Context, network, address string) (net.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	start := time.Now()
	res := est.Dial(context.Background(), "mx.example.com", "25", 200*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Equal(t, dialer.CodeTimeout, res.ErrorCode)
	assert.Less(t, elapsed, 2*time.Second)
}
