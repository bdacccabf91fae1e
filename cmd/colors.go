package cmd

import (
	"github.com/fatih/color"

	"github.com/secaudit/headgrade/internal/rules"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func colorGrade(g rules.Grade) string {
	switch g {
	case rules.GradeA, rules.GradeB:
		return colorSuccess(string(g))
	case rules.GradeC, rules.GradeD:
		return colorWarn(string(g))
	default:
		return colorError(string(g))
	}
}

func colorOutcome(o rules.RuleOutcome) string {
	if o.Passed {
		return colorSuccess("pass")
	}
	return colorError("fail")
}
