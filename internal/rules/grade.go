package rules

// Grade is the letter verdict derived from a report's failed-rule count,
// ordered worst to best F < E < D < C < B < A.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
	GradeF Grade = "F"
)

// Rank maps a grade onto its position in the total order, 0 for F up to
// 5 for A. Unknown grades rank below F.
func (g Grade) Rank() int {
	switch g {
	case GradeA:
		return 5
	case GradeB:
		return 4
	case GradeC:
		return 3
	case GradeD:
		return 2
	case GradeE:
		return 1
	case GradeF:
		return 0
	}
	return -1
}

// Thresholds are the maximum failed counts for each grade below A.
// A requires zero failures; anything above E is F. The values are tuned
// for a specific rule count and travel with the Config that owns them.
type Thresholds struct {
	B int
	C int
	D int
	E int
}

// DefaultThresholds matches the twelve-rule strict configuration.
var DefaultThresholds = Thresholds{B: 2, C: 4, D: 6, E: 8}

// Grade converts a report into a letter grade by counting failed
// outcomes. Every rule weighs the same; there is no partial credit.
func (c Config) Grade(report Report) Grade {
	failed := report.FailedCount()
	switch {
	case failed == 0:
		return GradeA
	case failed <= c.Thresholds.B:
		return GradeB
	case failed <= c.Thresholds.C:
		return GradeC
	case failed <= c.Thresholds.D:
		return GradeD
	case failed <= c.Thresholds.E:
		return GradeE
	default:
		return GradeF
	}
}
