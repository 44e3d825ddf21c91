package contact

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// DefaultDNSServers are queried in order for MX records.
var DefaultDNSServers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// MXVerifier checks that an email's domain accepts mail. Answers are cached
// per domain for the verifier's lifetime.
type MXVerifier struct {
	servers []string
	client  *dns.Client

	mu    sync.Mutex
	cache map[string]bool
}

// NewMXVerifier creates an MXVerifier. Empty servers uses DefaultDNSServers.
func NewMXVerifier(servers ...string) *MXVerifier {
	if len(servers) == 0 {
		servers = DefaultDNSServers
	}
	return &MXVerifier{
		servers: servers,
		client:  &dns.Client{Timeout: 5 * time.Second},
		cache:   make(map[string]bool),
	}
}

// HasMX reports whether the domain of email has at least one MX record.
func (v *MXVerifier) HasMX(ctx context.Context, email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))

	v.mu.Lock()
	if ok, cached := v.cache[domain]; cached {
		v.mu.Unlock()
		return ok
	}
	v.mu.Unlock()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	found := false
	for _, server := range v.servers {
		resp, _, err := v.client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			continue
		}
		found = resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0
		break
	}

	v.mu.Lock()
	v.cache[domain] = found
	v.mu.Unlock()
	return found
}

// Filter keeps the emails whose domains have MX records.
func (v *MXVerifier) Filter(ctx context.Context, emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if v.HasMX(ctx, e) {
			out = append(out, e)
		}
	}
	return out
}
