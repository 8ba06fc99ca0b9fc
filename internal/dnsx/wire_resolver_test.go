package dnsx

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveDNS runs an in-process DNS server on a loopback UDP port and returns
// its address.
func serveDNS(t *testing.T, handler mdns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &mdns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func mustRR(t *testing.T, s string) mdns.RR {
	t.Helper()
	rr, err := mdns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func newWireResolver(addr string) *WireResolver {
	return NewWireResolver(WireConfig{
		Nameservers: []string{addr},
		Timeout:     2 * time.Second,
		Retries:     1,
	})
}

func TestWireResolver_Lookups(t *testing.T) {
	addr := serveDNS(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		m := new(mdns.Msg)
		m.SetReply(req)
		switch req.Question[0].Qtype {
		case mdns.TypeA:
			m.Answer = append(m.Answer, mustRR(t, "example.com. 60 IN A 192.0.2.1"))
		case mdns.TypeAAAA:
			m.Answer = append(m.Answer, mustRR(t, "example.com. 60 IN AAAA 2001:db8::1"))
		case mdns.TypeMX:
			m.Answer = append(m.Answer,
				mustRR(t, "example.com. 60 IN MX 10 mx.example.com."),
				mustRR(t, "example.com. 60 IN MX 20 backup.example.com."))
		case mdns.TypeTXT:
			// Split character strings must be rejoined into one record.
			m.Answer = append(m.Answer, mustRR(t, `example.com. 60 IN TXT "v=spf1 " "-all"`))
		case mdns.TypeCNAME:
			m.Answer = append(m.Answer, mustRR(t, "example.com. 60 IN CNAME mail.provider.example."))
		case mdns.TypeNS:
			m.Answer = append(m.Answer, mustRR(t, "example.com. 60 IN NS ns1.example.com."))
		}
		_ = w.WriteMsg(m)
	})
	r := newWireResolver(addr)
	ctx := context.Background()

	ips, err := r.LookupIP(ctx, "ip4", "example.com")
	require.NoError(t, err)
	require.Len(t, ips, 1)
	assert.Equal(t, "192.0.2.1", ips[0].String())

	ips, err = r.LookupIP(ctx, "ip", "example.com")
	require.NoError(t, err)
	assert.Len(t, ips, 2, "both families on network ip")

	mxs, err := r.LookupMX(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, mxs, 2)
	assert.Equal(t, "mx.example.com.", mxs[0].Host)
	assert.Equal(t, uint16(10), mxs[0].Pref)

	txts, err := r.LookupTXT(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"v=spf1 -all"}, txts)

	cname, err := r.LookupCNAME(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "mail.provider.example", cname)

	ns, err := r.LookupNS(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns1.example.com"}, ns)
}

func TestWireResolver_RcodeTaxonomy(t *testing.T) {
	tests := []struct {
		name  string
		rcode int
		want  error
	}{
		{"nxdomain", mdns.RcodeNameError, ErrNotFound},
		{"servfail", mdns.RcodeServerFailure, ErrServFail},
		{"refused", mdns.RcodeRefused, ErrRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := serveDNS(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
				m := new(mdns.Msg)
				m.SetRcode(req, tt.rcode)
				_ = w.WriteMsg(m)
			})
			r := newWireResolver(addr)

			_, err := r.LookupMX(context.Background(), "example.com")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWireResolver_ServFailIsRetried(t *testing.T) {
	var queries atomic.Int32
	addr := serveDNS(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		queries.Add(1)
		m := new(mdns.Msg)
		m.SetRcode(req, mdns.RcodeServerFailure)
		_ = w.WriteMsg(m)
	})
	r := newWireResolver(addr) // Retries: 1

	_, err := r.LookupTXT(context.Background(), "example.com")
	assert.ErrorIs(t, err, ErrServFail)
	assert.Equal(t, int32(2), queries.Load())
}

func TestWireResolver_RetryRecovers(t *testing.T) {
	var queries atomic.Int32
	addr := serveDNS(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		m := new(mdns.Msg)
		if queries.Add(1) == 1 {
			m.SetRcode(req, mdns.RcodeServerFailure)
		} else {
			m.SetReply(req)
			m.Answer = append(m.Answer, mustRR(t, "example.com. 60 IN A 192.0.2.1"))
		}
		_ = w.WriteMsg(m)
	})
	r := newWireResolver(addr)

	ips, err := r.LookupIP(context.Background(), "ip4", "example.com")
	require.NoError(t, err)
	assert.Len(t, ips, 1)
	assert.Equal(t, int32(2), queries.Load())
}

func TestWireResolver_NXDomainStopsRetrying(t *testing.T) {
	var queries atomic.Int32
	addr := serveDNS(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		queries.Add(1)
		m := new(mdns.Msg)
		m.SetRcode(req, mdns.RcodeNameError)
		_ = w.WriteMsg(m)
	})
	r := newWireResolver(addr)

	_, err := r.LookupMX(context.Background(), "example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), queries.Load(), "a definitive NXDOMAIN is not retried")
}
