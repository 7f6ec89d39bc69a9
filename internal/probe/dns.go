package probe

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	ClassResolves = "RESOLVES"
	ClassNXDomain = "NXDOMAIN"
	ClassNoA      = "NO_A_RECORD"
	ClassServfail = "SERVFAIL_or_TIMEOUT"
	ClassInvalid  = "INVALID_NAME"
)

const fallbackResolver = "1.1.1.1:53"

type DNSStatus struct {
	Domain        string   `json:"domain"`
	IPs           []string `json:"ips,omitempty"`
	CNAME         string   `json:"cname,omitempty"`
	Nameservers   []string `json:"nameservers,omitempty"`
	Class         string   `json:"class"`
	ResolverError string   `json:"resolver_error,omitempty"`
}

// DNSClassifier explains why a host did not answer over HTTP by asking a
// single resolver for A, AAAA and NS records.
type DNSClassifier struct {
	Client *dns.Client
	Server string // host:port
}

// NewDNSClassifier uses server when set, otherwise the first nameserver in
// /etc/resolv.conf.
func NewDNSClassifier(server string, timeout time.Duration) *DNSClassifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	switch {
	case server == "":
		server = fallbackResolver
		if cc, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cc.Servers) > 0 {
			server = net.JoinHostPort(cc.Servers[0], cc.Port)
		}
	default:
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
	}
	return &DNSClassifier{
		Client: &dns.Client{Net: "udp", Timeout: timeout},
		Server: server,
	}
}

func (d *DNSClassifier) Classify(ctx context.Context, host string) DNSStatus {
	name := strings.TrimSpace(host)
	s := DNSStatus{Domain: name}
	if name == "" || strings.ContainsAny(name, "/ ") {
		s.Class = ClassInvalid
		return s
	}
	if h, _, err := net.SplitHostPort(name); err == nil {
		name = h
		s.Domain = h
	}

	if ip := net.ParseIP(name); ip != nil {
		s.IPs = []string{ip.String()}
		s.Class = ClassResolves
		return s
	}
	if _, ok := dns.IsDomainName(name); !ok {
		s.Class = ClassInvalid
		return s
	}

	r, err := d.exchange(ctx, name, dns.TypeA)
	if err != nil {
		s.ResolverError = err.Error()
		s.Class = ClassServfail
		return s
	}
	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		s.Class = ClassNXDomain
		return s
	default:
		s.ResolverError = dns.RcodeToString[r.Rcode]
		s.Class = ClassServfail
		return s
	}
	s.collect(r)

	if len(s.IPs) == 0 {
		if r6, err := d.exchange(ctx, name, dns.TypeAAAA); err == nil && r6.Rcode == dns.RcodeSuccess {
			s.collect(r6)
		}
	}
	if len(s.IPs) > 0 {
		s.Class = ClassResolves
		return s
	}

	if rns, err := d.exchange(ctx, name, dns.TypeNS); err == nil && rns.Rcode == dns.RcodeSuccess {
		for _, rr := range rns.Answer {
			if ns, ok := rr.(*dns.NS); ok {
				s.Nameservers = append(s.Nameservers, strings.TrimSuffix(ns.Ns, "."))
			}
		}
	}
	s.Class = ClassNoA
	return s
}

func (s *DNSStatus) collect(r *dns.Msg) {
	for _, rr := range r.Answer {
		switch v := rr.(type) {
		case *dns.A:
			s.IPs = append(s.IPs, v.A.String())
		case *dns.AAAA:
			s.IPs = append(s.IPs, v.AAAA.String())
		case *dns.CNAME:
			if s.CNAME == "" {
				s.CNAME = strings.TrimSuffix(v.Target, ".")
			}
		}
	}
}

func (d *DNSClassifier) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	r, _, err := d.Client.ExchangeContext(ctx, m, d.Server)
	return r, err
}
