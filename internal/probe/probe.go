// Package probe performs the outbound side of a scan: one HTTP fetch that
// captures response headers, plus forward DNS resolution for both address
// families.
package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/secaudit/headgrade/internal/rules"
)

// UserAgent identifies the scanner on outbound requests.
const UserAgent = "Mozilla/5.0 (compatible; headgrade/1.0; +https://github.com/secaudit/headgrade)"

// Addresses are the deduplicated resolution results per family.
type Addresses struct {
	V4 []string `json:"v4,omitempty"`
	V6 []string `json:"v6,omitempty"`
}

// Prober issues the network calls for a scan. Timeouts come from the
// injected client and the caller's context so a tighter timeout policy
// can be layered on without touching rule evaluation.
type Prober struct {
	Client   *http.Client
	Resolver *net.Resolver
}

// New creates a prober with the given overall fetch timeout.
func New(timeout time.Duration) *Prober {
	return &Prober{
		Client:   &http.Client{Timeout: timeout},
		Resolver: &net.Resolver{PreferGo: true},
	}
}

// Fetch issues a GET against the target URL and captures every response
// header verbatim into a HeaderMap. Multi-valued headers are joined with
// ", ". The body is discarded; only headers matter here.
func (p *Prober) Fetch(ctx context.Context, targetURL string) (rules.HeaderMap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	headers := make(rules.HeaderMap, len(resp.Header))
	for name, values := range resp.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return headers, nil
}

// Resolve looks up A and AAAA records for host independently. A failure
// in one family never fails the other, and a scan proceeds even when both
// families come back empty, so Resolve reports no error.
func (p *Prober) Resolve(ctx context.Context, host string) Addresses {
	var addrs Addresses
	if ips, err := p.Resolver.LookupIP(ctx, "ip4", host); err == nil {
		addrs.V4 = dedupe(ips)
	}
	if ips, err := p.Resolver.LookupIP(ctx, "ip6", host); err == nil {
		addrs.V6 = dedupe(ips)
	}
	return addrs
}

func dedupe(ips []net.IP) []string {
	seen := make(map[string]struct{}, len(ips))
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		s := ip.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
