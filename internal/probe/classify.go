package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/hamed0406/pagewatch/internal/domain"
)

// Human-readable Down reasons. Dashboards match on these strings.
const (
	ReasonDNS         = "DNS Resolution Failed"
	ReasonTimeout     = "Connection Timeout"
	ReasonRefused     = "Connection Refused"
	ReasonTLS         = "SSL Error"
	ReasonConnFailed  = "Connection Failed"
	ReasonMinimal     = "Minimal Content"
	reasonRequestPref = "Request Error: "
)

// classifyTransport maps a client.Do error to a network error kind and the
// reason string shown to operators.
func classifyTransport(err error) (domain.NetworkErrorKind, string) {
	var (
		dnsErr    *net.DNSError
		certErr   *tls.CertificateVerificationError
		recErr    tls.RecordHeaderError
		authErr   x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		invalErr  x509.CertificateInvalidError
		opErr     *net.OpError
		netErr    net.Error
		urlErr    *url.Error
		innerText string
	)
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		innerText = urlErr.Err.Error()
	} else {
		innerText = err.Error()
	}

	switch {
	case errors.As(err, &dnsErr):
		return domain.KindDNS, ReasonDNS
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return domain.KindTimeout, ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.KindConnectionRefused, ReasonRefused
	case errors.As(err, &certErr), errors.As(err, &recErr), errors.As(err, &authErr),
		errors.As(err, &hostErr), errors.As(err, &invalErr),
		strings.HasPrefix(innerText, "tls: "):
		return domain.KindTLS, ReasonTLS
	case errors.As(err, &opErr):
		return domain.KindOther, ReasonConnFailed
	default:
		return domain.KindOther, reasonRequestPref + innerText
	}
}

// defaultPort returns the well-known port for scheme, or "unknown".
func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return "unknown"
}

// urlPort returns the explicit port of u or the scheme default.
func urlPort(u *url.URL) string {
	if u == nil {
		return "unknown"
	}
	if p := u.Port(); p != "" {
		return p
	}
	return defaultPort(u.Scheme)
}
