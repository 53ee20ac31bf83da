package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// OpenDNS answers "myip.opendns.com" A queries with the caller's address.
const (
	openDNSName     = "myip.opendns.com."
	openDNSResolver = "resolver1.opendns.com:53"
)

// DNSSource discovers the public IP by asking a resolver that echoes the
// querier's address, such as OpenDNS. UDP avoids the TCP setup cost and the
// single-record answer always fits in a plain DNS message.
type DNSSource struct {
	name     string
	query    string
	resolver string
	client   *dns.Client
}

// NewDNSSource creates a DNS echo source querying name against resolver
// (host:port). With empty arguments it defaults to OpenDNS.
func NewDNSSource(query, resolver string) *DNSSource {
	if query == "" {
		query = openDNSName
	}
	if resolver == "" {
		resolver = openDNSResolver
	}
	return &DNSSource{
		name:     "dns:" + resolver,
		query:    dns.Fqdn(query),
		resolver: resolver,
		client: &dns.Client{
			Net:     "udp4",
			Timeout: SourceTimeout,
		},
	}
}

// Name implements Source.
func (s *DNSSource) Name() string {
	return s.name
}

// Lookup implements Source.
func (s *DNSSource) Lookup(ctx context.Context) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(s.query, dns.TypeA)

	resp, _, err := s.client.ExchangeContext(ctx, msg, s.resolver)
	if err != nil {
		return "", fmt.Errorf("dns query failed: %w", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("dns query returned %s", dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), nil
		}
	}

	return "", errors.New("dns answer contained no A record")
}
