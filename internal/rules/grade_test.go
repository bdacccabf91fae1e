package rules

import "testing"

func reportWithFailures(n int) Report {
	var r Report
	for i := 0; i < n; i++ {
		r.add(RuleOutcome{Rule: "failed", Passed: false, Message: "Missing"})
	}
	r.add(RuleOutcome{Rule: "passed", Passed: true})
	return r
}

func TestGrade_Thresholds(t *testing.T) {
	tests := []struct {
		failed int
		want   Grade
	}{
		{0, GradeA},
		{1, GradeB},
		{2, GradeB},
		{3, GradeC},
		{4, GradeC},
		{5, GradeD},
		{6, GradeD},
		{7, GradeE},
		{8, GradeE},
		{9, GradeF},
		{12, GradeF},
	}
	for _, tt := range tests {
		if got := StrictRules.Grade(reportWithFailures(tt.failed)); got != tt.want {
			t.Errorf("Grade(%d failures) = %s, want %s", tt.failed, got, tt.want)
		}
	}
}

func TestGrade_AllRulesPassingIsA(t *testing.T) {
	headers := HeaderMap{
		"strict-transport-security": "max-age=31536000; includeSubDomains; preload",
		"content-security-policy":   "default-src 'self'",
		"x-frame-options":           "DENY",
		"x-content-type-options":    "nosniff",
		"referrer-policy":           "no-referrer",
		"permissions-policy":        "geolocation=(), microphone=()",
		"x-xss-protection":          "0",
		"expect-ct":                 "max-age=86400, enforce",
		"content-encoding":          "gzip",
		"server":                    "nginx",
		"cache-control":             "no-store",
	}
	report := StrictRules.Evaluate(headers)
	if failed := report.FailedCount(); failed != 0 {
		for _, o := range report.Outcomes {
			if !o.Passed {
				t.Logf("failed rule: %s (%s)", o.Rule, o.Message)
			}
		}
		t.Fatalf("Expected 0 failures, got %d", failed)
	}
	if grade := StrictRules.Grade(report); grade != GradeA {
		t.Errorf("Expected grade A, got %s", grade)
	}
}

func TestGrade_Ordering(t *testing.T) {
	order := []Grade{GradeF, GradeE, GradeD, GradeC, GradeB, GradeA}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("Expected %s to rank above %s", order[i], order[i-1])
		}
	}
}
