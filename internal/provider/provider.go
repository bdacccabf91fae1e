// Package provider guesses the hosting provider of a response from its
// raw headers. The heuristics are best-effort labeling for display only;
// false negatives are fine and nothing here ever fails.
package provider

import (
	"strings"

	"github.com/secaudit/headgrade/internal/rules"
)

// Info flags the providers recognized from response headers.
type Info struct {
	Cloudflare bool `json:"cloudflare"`
	Railway    bool `json:"railway"`
	Vercel     bool `json:"vercel"`
}

// Classify inspects header names and the Server value for provider
// signatures.
func Classify(headers rules.HeaderMap) Info {
	var info Info
	for name := range headers {
		if strings.HasPrefix(name, "cf-") {
			info.Cloudflare = true
		}
		if strings.HasPrefix(name, "x-vercel-") {
			info.Vercel = true
		}
	}
	if server, ok := headers.Get("server"); ok {
		if server == "railway" {
			info.Railway = true
		}
		if server == "Vercel" {
			info.Vercel = true
		}
	}
	return info
}
