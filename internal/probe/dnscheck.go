package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Resolver is the subset of *net.Resolver the probes use. Tests swap it for
// a fake so DNS failures can be simulated without touching the network.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

type DNSClass string

const (
	DNSResolves    DNSClass = "RESOLVES"
	DNSNXDomain    DNSClass = "NXDOMAIN"
	DNSNoAddress   DNSClass = "NO_A_RECORD"
	DNSUnavailable DNSClass = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName DNSClass = "INVALID_NAME"
)

type DNSStatus struct {
	Domain        string
	HasAOrAAAA    bool
	IPs           []net.IP
	CNAME         string
	HasNS         bool
	Nameservers   []string
	Class         DNSClass
	ResolverError string
}

func (s DNSStatus) Resolves() bool { return s.Class == DNSResolves }

var dnsTimeout = 3 * time.Second

// CheckDNS resolves domain and classifies the outcome. A literal IP always
// resolves. NS lookups only run after an address lookup failed, to tell a
// missing record apart from a missing zone.
func CheckDNS(ctx context.Context, r Resolver, domain string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(domain)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if ip := net.ParseIP(s.Domain); ip != nil {
		s.HasAOrAAAA = true
		s.IPs = []net.IP{ip}
		s.Class = DNSResolves
		return s
	}
	if r == nil {
		r = net.DefaultResolver
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	if err == nil && len(ips) > 0 {
		s.HasAOrAAAA = true
		s.IPs = ips
		s.Class = DNSResolves
		if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
			s.CNAME = strings.TrimSuffix(cname, ".")
		}
		return s
	}
	if err != nil {
		var de *net.DNSError
		s.ResolverError = err.Error()
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSUnavailable
			}
		}
	}

	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		s.HasNS = true
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoAddress
		}
	}

	if s.Class == "" {
		switch {
		case s.HasNS:
			s.Class = DNSNoAddress
		case s.ResolverError != "":
			s.Class = DNSUnavailable
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}
