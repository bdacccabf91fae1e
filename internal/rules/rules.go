package rules

import (
	"regexp"
	"strings"
)

// HeaderMap holds the headers of a single HTTP response keyed by
// lower-cased header name. It is captured once from a response and not
// mutated afterwards.
type HeaderMap map[string]string

// Get returns the value for a header name, looked up case-insensitively.
func (h HeaderMap) Get(name string) (string, bool) {
	v, ok := h[strings.ToLower(name)]
	return v, ok
}

// RuleOutcome is one rule's verdict. Message is empty when the rule passed.
type RuleOutcome struct {
	Rule    string `json:"rule"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Report is the ordered collection of rule outcomes for one response,
// at most one outcome per rule.
type Report struct {
	Outcomes []RuleOutcome `json:"outcomes"`
}

// Outcome looks up a rule's verdict by rule name.
func (r Report) Outcome(name string) (RuleOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Rule == name {
			return o, true
		}
	}
	return RuleOutcome{}, false
}

// FailedCount returns the number of failed outcomes in the report.
func (r Report) FailedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Passed {
			n++
		}
	}
	return n
}

func (r *Report) add(o RuleOutcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// msgMissing is the verdict recorded in strict mode when a mandatory
// header is absent.
const msgMissing = "Missing"

// headerRule checks a single header's value. Check judges a value that is
// present; absence handling depends on the rule flags and the config mode.
type headerRule struct {
	Name   string
	Header string
	Check  func(value string) (bool, string)

	// alwaysEvaluated rules record an outcome even in lenient mode when
	// the header is absent (the Server disclosure rule).
	alwaysEvaluated bool

	// passThrough rules never judge their value; present means pass.
	passThrough bool
}

// Mode selects how a rule configuration treats absent headers.
type Mode int

const (
	// ModeStrict treats every recognized header as mandatory.
	ModeStrict Mode = iota
	// ModeLenient skips absent headers instead of failing them.
	ModeLenient
)

// Config is a named, versioned rule set. Thresholds are calibrated to the
// rule count of the config they sit on; extending the rule list means
// recalibrating them together.
type Config struct {
	Name       string
	Mode       Mode
	Thresholds Thresholds
	rules      []headerRule
}

// RuleCount returns the number of rules in the configuration.
func (c Config) RuleCount() int { return len(c.rules) }

// Evaluate runs every rule in the configuration against the captured
// headers and returns the report. Evaluation is deterministic: the same
// HeaderMap always yields the same report.
func (c Config) Evaluate(headers HeaderMap) Report {
	var report Report
	for _, r := range c.rules {
		value, present := headers.Get(r.Header)

		if !present {
			switch {
			case c.Mode == ModeStrict:
				report.add(RuleOutcome{Rule: r.Name, Passed: false, Message: msgMissing})
			case r.alwaysEvaluated:
				// Nothing disclosed, nothing to fail.
				report.add(RuleOutcome{Rule: r.Name, Passed: true})
			}
			continue
		}

		if r.passThrough {
			report.add(RuleOutcome{Rule: r.Name, Passed: true})
			continue
		}

		passed, msg := r.Check(value)
		if passed {
			msg = ""
		}
		report.add(RuleOutcome{Rule: r.Name, Passed: passed, Message: msg})
	}
	return report
}

var maxAgePattern = regexp.MustCompile(`max-age=0*[1-9][0-9]*`)

func checkHSTS(value string) (bool, string) {
	if !maxAgePattern.MatchString(strings.ToLower(value)) {
		return false, "max-age directive missing or zero"
	}
	return true, ""
}

func checkHSTSPreload(value string) (bool, string) {
	if !strings.Contains(strings.ToLower(value), "preload") {
		return false, "preload token not present"
	}
	return true, ""
}

func checkCSP(value string) (bool, string) {
	v := strings.ToLower(value)
	if strings.TrimSpace(v) == "" {
		return false, "empty policy"
	}
	if strings.Contains(v, "'unsafe-inline'") || strings.Contains(v, "'unsafe-eval'") {
		return false, "policy allows unsafe inline or eval"
	}
	return true, ""
}

func checkXFrameOptions(value string) (bool, string) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DENY", "SAMEORIGIN":
		return true, ""
	}
	return false, "must be DENY or SAMEORIGIN"
}

func checkXContentTypeOptions(value string) (bool, string) {
	if strings.ToLower(strings.TrimSpace(value)) != "nosniff" {
		return false, "must be nosniff"
	}
	return true, ""
}

var acceptedReferrerPolicies = []string{
	"no-referrer",
	"no-referrer-when-downgrade",
	"same-origin",
	"origin",
	"strict-origin",
	"strict-origin-when-cross-origin",
}

func checkReferrerPolicy(value string) (bool, string) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, policy := range acceptedReferrerPolicies {
		if v == policy {
			return true, ""
		}
	}
	return false, "weak or unknown referrer policy"
}

func checkPermissionsPolicy(value string) (bool, string) {
	if strings.TrimSpace(value) == "" {
		return false, "empty policy"
	}
	return true, ""
}

func checkXSSProtection(value string) (bool, string) {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), " ", "")
	if v == "0" || v == "1;mode=block" {
		return true, ""
	}
	return false, `must be "0" or "1; mode=block"`
}

func checkExpectCT(value string) (bool, string) {
	if !strings.Contains(strings.ToLower(value), "max-age=") {
		return false, "max-age directive missing"
	}
	return true, ""
}

var acceptedEncodings = []string{"gzip", "br", "zstd", "deflate", "compress"}

func checkContentEncoding(value string) (bool, string) {
	v := strings.ToLower(value)
	for _, enc := range acceptedEncodings {
		if strings.Contains(v, enc) {
			return true, ""
		}
	}
	return false, "no compression negotiated"
}

// serverDenylist identifies server software that should not be disclosed.
// nginx is deliberately absent: a bare "nginx" value names a product
// without a version and the original policy tolerates it.
var serverDenylist = []string{
	"apache",
	"iis",
	"express",
	"tomcat",
	"jetty",
	"php",
	"litespeed",
	"openresty",
	"microsoft-httpapi",
	"werkzeug",
	"gunicorn",
	"kestrel",
}

func checkServer(value string) (bool, string) {
	v := strings.ToLower(value)
	for _, software := range serverDenylist {
		if strings.Contains(v, software) {
			return false, "server software disclosed"
		}
	}
	return true, ""
}

var cacheDirectives = []string{"no-store", "no-cache", "private", "max-age="}

func checkCacheControl(value string) (bool, string) {
	v := strings.ToLower(value)
	for _, directive := range cacheDirectives {
		if strings.Contains(v, directive) {
			return true, ""
		}
	}
	return false, "no caching directives"
}

func baseRules() []headerRule {
	return []headerRule{
		{Name: "strict-transport-security", Header: "strict-transport-security", Check: checkHSTS},
		{Name: "hsts-preload", Header: "strict-transport-security", Check: checkHSTSPreload},
		{Name: "content-security-policy", Header: "content-security-policy", Check: checkCSP},
		{Name: "x-frame-options", Header: "x-frame-options", Check: checkXFrameOptions},
		{Name: "x-content-type-options", Header: "x-content-type-options", Check: checkXContentTypeOptions},
		{Name: "referrer-policy", Header: "referrer-policy", Check: checkReferrerPolicy},
		{Name: "permissions-policy", Header: "permissions-policy", Check: checkPermissionsPolicy},
		{Name: "x-xss-protection", Header: "x-xss-protection", Check: checkXSSProtection},
		{Name: "expect-ct", Header: "expect-ct", Check: checkExpectCT},
		{Name: "content-encoding", Header: "content-encoding", Check: checkContentEncoding},
		{Name: "server", Header: "server", Check: checkServer, alwaysEvaluated: true},
	}
}

// StrictRules is the production grading configuration: every recognized
// header is mandatory, including the Cache-Control rule.
var StrictRules = Config{
	Name:       "strict",
	Mode:       ModeStrict,
	Thresholds: DefaultThresholds,
	rules: append(baseRules(), headerRule{
		Name: "cache-control", Header: "cache-control", Check: checkCacheControl,
	}),
}

// LenientRules skips absent headers and additionally records pass-through
// outcomes for headers the policy deliberately does not judge.
var LenientRules = Config{
	Name:       "lenient",
	Mode:       ModeLenient,
	Thresholds: DefaultThresholds,
	rules: append(baseRules(),
		headerRule{Name: "feature-policy", Header: "feature-policy", passThrough: true},
		headerRule{Name: "public-key-pins", Header: "public-key-pins", passThrough: true},
		headerRule{Name: "access-control-allow-origin", Header: "access-control-allow-origin", passThrough: true},
	),
}

// ConfigByName resolves a rule configuration from its name, defaulting to
// strict for unknown names.
func ConfigByName(name string) Config {
	if strings.EqualFold(name, LenientRules.Name) {
		return LenientRules
	}
	return StrictRules
}
