package report

// Grade is the discrete performance label of a monthly report.
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

var gradeTiers = []Grade{GradeC, GradeB, GradeA, GradeS}

// Daily-average thresholds for the base tier.
const (
	thresholdS = 15.0
	thresholdA = 10.0
	thresholdB = 5.0
)

// ScoreGrade derives the grade from the window's daily average, raised one
// tier when total is strictly above the preceding window's total.
func ScoreGrade(dailyAverage float64, total, previousTotal int) Grade {
	tier := 0
	switch {
	case dailyAverage >= thresholdS:
		tier = 3
	case dailyAverage >= thresholdA:
		tier = 2
	case dailyAverage >= thresholdB:
		tier = 1
	}
	if total > previousTotal && tier < len(gradeTiers)-1 {
		tier++
	}
	return gradeTiers[tier]
}

// Comment is the one-line assessment printed next to the grade.
func (g Grade) Comment() string {
	switch g {
	case GradeS:
		return "탁월한 성과! 베스트 페이지에서 강력한 존재감을 보였습니다."
	case GradeA:
		return "우수한 성과! 안정적으로 베스트 순위를 유지하고 있습니다."
	case GradeB:
		return "양호한 성과! 일부 카테고리에서 개선의 여지가 있습니다."
	case GradeC:
		return "개선 필요! 마케팅 전략 재검토가 필요합니다."
	}
	return ""
}
