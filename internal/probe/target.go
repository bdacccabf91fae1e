package probe

import (
	"net/url"
	"strings"

	sharedErrors "github.com/secaudit/headgrade/internal/shared/errors"
)

// Target is a validated probe target.
type Target struct {
	Original string // query string as supplied by the caller
	URL      string // normalized URL used for the outbound request
	Host     string // bare hostname for DNS lookups and event-log keys
}

// ParseTarget validates and normalizes a query URL. The target must start
// with an accepted scheme and its hostname must contain a dot followed by
// at least two characters. That is a heuristic TLD check, not a public
// suffix lookup; it exists to fail fast before any network activity.
func ParseTarget(raw string) (*Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, sharedErrors.ErrEmptyTarget
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, sharedErrors.ErrBadScheme
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Hostname() == "" {
		return nil, sharedErrors.ErrBadHostname
	}

	host := strings.ToLower(parsed.Hostname())
	dot := strings.Index(host, ".")
	if dot <= 0 || len(host[dot+1:]) < 2 {
		return nil, sharedErrors.ErrBadHostname
	}

	return &Target{
		Original: trimmed,
		URL:      parsed.String(),
		Host:     host,
	}, nil
}
