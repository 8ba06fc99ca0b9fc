// Package check contains the probe components of the deliverability engine:
// DNS resolution (dns.go), the SMTP probe state machine (smtp.go,
// classify.go), catchall detection (catchall.go), the DNS fallback signal
// scanner (fallback.go) and the confidence scorer (confidence.go).
//
// These types can be used directly, but the recommended entry point is the
// Verifier in the github.com/optimode/deliverkit package.
package check
