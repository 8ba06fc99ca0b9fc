package check

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/optimode/deliverkit/internal/dialer"
	"github.com/optimode/deliverkit/types"
)

// Protocol-level error codes surfaced in verdict messages.
const (
	CodeResponseTimeout = "RESPONSE_TIMEOUT"
	CodeParseError      = "PARSE_ERROR"
	CodeSendError       = "SEND_ERROR"
)

var (
	errParse = errors.New("smtp: malformed response")
	errSend  = errors.New("smtp: send failed")
)

// ProbeConfig configures the SMTP probe.
type ProbeConfig struct {
	// HeloDomain is the domain sent in EHLO. Required.
	HeloDomain string
	// MailFrom is the address sent in MAIL FROM. Required.
	MailFrom string
	// Port is the SMTP port. Default: 25
	Port string
	// ConnectTimeout bounds connection establishment. Default: 20s
	ConnectTimeout time.Duration
	// ReadTimeout bounds each SMTP response read. Default: 5s
	ReadTimeout time.Duration
	// TLSHandshakeTimeout bounds the STARTTLS upgrade. Default: 8s
	TLSHandshakeTimeout time.Duration
	// Logger for protocol-level events. Default: slog.Default()
	Logger *slog.Logger
}

func (c *ProbeConfig) applyDefaults() {
	if c.Port == "" {
		c.Port = "25"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.TLSHandshakeTimeout == 0 {
		c.TLSHandshakeTimeout = 8 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SMTPProbe verifies a recipient against a mail exchange without delivering
// mail: greeting, EHLO, best-effort STARTTLS, MAIL FROM, RCPT TO, QUIT.
//
// The probe's contract is that no network or timeout condition surfaces as a
// Go error; every outcome is a structured Verdict. The socket is closed on
// every exit path.
type SMTPProbe struct {
	cfg ProbeConfig
	est *dialer.Establisher
	log *slog.Logger
}

// NewSMTPProbe creates a probe using the given connection establisher.
func NewSMTPProbe(cfg ProbeConfig, est *dialer.Establisher) *SMTPProbe {
	cfg.applyDefaults()
	return &SMTPProbe{cfg: cfg, est: est, log: cfg.Logger}
}

// ProbeRecipient runs the full state machine against one mail exchange and
// classifies the server's responses into a deliverability verdict.
func (p *SMTPProbe) ProbeRecipient(ctx context.Context, email string, mx types.MxRecord) types.Verdict {
	flags := types.Flags{}
	host := strings.TrimSuffix(mx.Exchange, ".")

	res := p.est.Dial(ctx, host, p.cfg.Port, p.cfg.ConnectTimeout)
	if !res.Success {
		flags = flags.Add(types.FlagConnectionFailed)
		flags = flags.Add(strings.ToLower(res.ErrorCode))
		return types.Verdict{
			Result:  types.ResultUnknown,
			Flags:   flags,
			Message: fmt.Sprintf("connection to %s failed: %v", host, res.Err),
		}
	}

	s := newSession(res.Conn, p.cfg.ReadTimeout)
	defer s.close(p.log) // socket destroyed on every exit path

	// Greeting
	resp, err := s.read()
	if err != nil {
		return protocolVerdict("greeting", err, flags)
	}
	if resp.Code != 220 {
		return classifyGreeting(resp, flags)
	}

	// EHLO
	resp, err = s.cmd("EHLO %s", p.cfg.HeloDomain)
	if err != nil {
		return protocolVerdict("EHLO", err, flags)
	}
	if resp.Code == 250 {
		flags = flags.Add(types.FlagSMTPConnectable)
	}

	// STARTTLS upgrade, best-effort: any failure here falls back to the
	// plaintext socket and continues.
	if strings.Contains(strings.ToUpper(resp.Message), "STARTTLS") {
		flags = p.tryStartTLS(ctx, s, host, flags)
	}

	// MAIL FROM
	resp, err = s.cmd("MAIL FROM:<%s>", p.cfg.MailFrom)
	if err != nil {
		return protocolVerdict("MAIL FROM", err, flags)
	}
	if resp.Code != 250 {
		return classifyMailFrom(resp, flags)
	}
	flags = flags.Add(types.FlagSMTPConnectable)

	// RCPT TO: the decision point
	resp, err = s.cmd("RCPT TO:<%s>", email)
	if err != nil {
		return protocolVerdict("RCPT TO", err, flags)
	}
	return classifyRcpt(resp, flags)
}

// CheckConnectable reports whether a mail exchange accepts a session up to
// EHLO. Used by the basic capability report.
func (p *SMTPProbe) CheckConnectable(ctx context.Context, mx types.MxRecord) (bool, string) {
	host := strings.TrimSuffix(mx.Exchange, ".")

	res := p.est.Dial(ctx, host, p.cfg.Port, p.cfg.ConnectTimeout)
	if !res.Success {
		return false, fmt.Sprintf("connection to %s failed: %v", host, res.Err)
	}
	s := newSession(res.Conn, p.cfg.ReadTimeout)
	defer s.close(p.log)

	resp, err := s.read()
	if err != nil {
		return false, fmt.Sprintf("greeting: %v", err)
	}
	if resp.Code != 220 {
		return false, fmt.Sprintf("greeting: %d %s", resp.Code, resp.Message)
	}
	resp, err = s.cmd("EHLO %s", p.cfg.HeloDomain)
	if err != nil {
		return false, fmt.Sprintf("EHLO: %v", err)
	}
	if resp.Code != 250 {
		return false, fmt.Sprintf("EHLO: %d %s", resp.Code, resp.Message)
	}
	return true, ""
}

// tryStartTLS upgrades the session to TLS and re-issues EHLO. Certificate
// validation is disabled: the probe measures reachability, not trust.
func (p *SMTPProbe) tryStartTLS(ctx context.Context, s *session, host string, flags types.Flags) types.Flags {
	resp, err := s.cmd("STARTTLS")
	if err != nil || resp.Code != 220 {
		p.log.Debug("starttls refused, continuing in plaintext", "host", host, "err", err)
		return flags
	}

	if err := s.upgradeTLS(ctx, host, p.cfg.TLSHandshakeTimeout); err != nil {
		p.log.Debug("tls handshake failed, continuing in plaintext", "host", host, "err", err)
		return flags
	}

	resp, err = s.cmd("EHLO %s", p.cfg.HeloDomain)
	if err != nil {
		p.log.Debug("ehlo over tls failed", "host", host, "err", err)
		return flags
	}
	if resp.Code == 250 {
		flags = flags.Add(types.FlagSMTPConnectable)
	}
	return flags
}

// protocolVerdict converts an I/O or parse failure into an unknown verdict
// tagged with the protocol error code. Anything that is not a timeout, a
// parse failure or a send failure is a dropped connection (io.EOF and
// friends).
func protocolVerdict(stage string, err error, flags types.Flags) types.Verdict {
	code := dialer.CodeConnectionError
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		code = CodeResponseTimeout
	case errors.Is(err, errParse):
		code = CodeParseError
	case errors.Is(err, errSend):
		code = CodeSendError
	}
	return types.Verdict{
		Result:  types.ResultUnknown,
		Flags:   flags,
		Message: fmt.Sprintf("%s during %s: %v", code, stage, err),
	}
}

// session is one SMTP conversation. It owns exactly one socket, which may be
// swapped for its TLS wrapper mid-session.
type session struct {
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	readTimeout time.Duration
}

func newSession(conn net.Conn, readTimeout time.Duration) *session {
	return &session{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		writer:      bufio.NewWriter(conn),
		readTimeout: readTimeout,
	}
}

// read reads one (possibly multi-line) SMTP response under the read timeout.
func (s *session) read() (types.SMTPResponse, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return types.SMTPResponse{}, err
	}

	var lines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return types.SMTPResponse{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return types.SMTPResponse{}, fmt.Errorf("%w: %q", errParse, line)
		}
		lines = append(lines, line)
		// A '-' after the code marks a continuation line
		if len(line) < 4 || line[3] != '-' {
			break
		}
	}

	last := lines[len(lines)-1]
	code, err := strconv.Atoi(last[:3])
	if err != nil || code < 100 || code > 599 {
		return types.SMTPResponse{}, fmt.Errorf("%w: bad code %q", errParse, last[:3])
	}
	return types.SMTPResponse{Code: code, Message: strings.Join(lines, " | ")}, nil
}

// cmd sends one SMTP command and reads the response.
func (s *session) cmd(format string, args ...any) (types.SMTPResponse, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return types.SMTPResponse{}, fmt.Errorf("%w: %v", errSend, err)
	}
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		return types.SMTPResponse{}, fmt.Errorf("%w: %v", errSend, err)
	}
	if err := s.writer.Flush(); err != nil {
		return types.SMTPResponse{}, fmt.Errorf("%w: %v", errSend, err)
	}
	return s.read()
}

// upgradeTLS performs the TLS handshake over the existing socket and swaps
// the session onto the encrypted channel.
func (s *session) upgradeTLS(ctx context.Context, host string, timeout time.Duration) error {
	tlsConn := tls.Client(s.conn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, // reachability over certificate trust
	})

	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		return err
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	return nil
}

// close sends a best-effort QUIT and destroys the socket. QUIT failures are
// logged and never change the verdict.
func (s *session) close(log *slog.Logger) {
	_ = s.conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := s.writer.WriteString("QUIT\r\n"); err == nil {
		if err := s.writer.Flush(); err != nil {
			log.Debug("quit failed", "err", err)
		}
	} else {
		log.Debug("quit failed", "err", err)
	}
	_ = s.conn.Close()
}
