package parser

import (
	"regexp"
	"strings"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

var (
	trailingAmount  = regexp.MustCompile(`\d\.\d{2}$`)
	negativeAmounts = regexp.MustCompile(`(?m)(?:\(\s*[\d,]+\.\d{2}\s*\)|\s-[\d,]+\.\d{2}|\d\.\d{2}-)[ \t]*$`)
)

// Detect scores every registered template against the statement text and
// returns the best one. Ties go to the template declared first. An empty
// bank type means nothing reached MinScore.
func Detect(text string) (models.BankType, int) {
	lower := strings.ToLower(text)
	lines := strings.Split(text, "\n")

	var best models.BankType
	bestScore := 0
	for i := range registry {
		s := score(&registry[i], lower, lines)
		if s > bestScore {
			best, bestScore = registry[i].ID, s
		}
	}
	if bestScore < MinScore {
		return "", bestScore
	}
	return best, bestScore
}

func score(t *Template, lower string, lines []string) int {
	s := 0
	for _, a := range t.Anchors {
		if strings.Contains(lower, strings.ToLower(a.Phrase)) {
			s += a.Weight
		}
	}
	if s == 0 {
		// layout cues alone never identify a bank
		return 0
	}
	if structuralCue(t, lower, lines) {
		s++
	}
	return s
}

// structuralCue checks for the sign convention the template declares.
func structuralCue(t *Template, lower string, lines []string) bool {
	switch t.Sign {
	case SignColumns:
		n := 0
		for _, line := range lines {
			if strings.Count(line, "\t") >= 3 {
				n++
				if n >= 2 {
					return true
				}
			}
		}
	case SignSuffix:
		marker := strings.ToLower(t.CreditMarker)
		for _, line := range strings.Split(lower, "\n") {
			line = strings.TrimSpace(line)
			if marker == "" || !strings.HasSuffix(line, marker) {
				continue
			}
			if trailingAmount.MatchString(strings.TrimSpace(strings.TrimSuffix(line, marker))) {
				return true
			}
		}
	case SignNegative:
		return negativeAmounts.MatchString(lower)
	}
	return false
}
