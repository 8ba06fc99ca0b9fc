package deliverkit

import "time"

// ProbeOptions configures the SMTP probe. HeloDomain and MailFrom are
// required; everything else has defaults.
type ProbeOptions struct {
	// HeloDomain is the domain sent in the EHLO command, e.g. "myapp.com". Required.
	HeloDomain string
	// MailFrom is the address sent in MAIL FROM, e.g. "verify@myapp.com". Required.
	MailFrom string
	// Port is the SMTP port. Default: "25"
	Port string
	// ConnectTimeout bounds connection establishment per MX host. Default: 20s
	ConnectTimeout time.Duration
	// ReadTimeout bounds each SMTP response read. Default: 5s
	ReadTimeout time.Duration
	// TLSHandshakeTimeout bounds the STARTTLS upgrade. Default: 8s
	TLSHandshakeTimeout time.Duration
	// MaxMXHosts is how many MX hosts to try sequentially. Default: 3
	MaxMXHosts int
}

func (o *ProbeOptions) applyDefaults() {
	if o.Port == "" {
		o.Port = "25"
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 20 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 5 * time.Second
	}
	if o.TLSHandshakeTimeout == 0 {
		o.TLSHandshakeTimeout = 8 * time.Second
	}
	if o.MaxMXHosts <= 0 {
		o.MaxMXHosts = 3
	}
}

// ConcurrencyOptions configures concurrent processing for VerifyMany.
type ConcurrencyOptions struct {
	// Workers is the number of concurrent goroutines. Default: 5
	Workers int
}
