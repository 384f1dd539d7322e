package incidents

import (
	"regexp"
	"strings"
)

// DefaultHighway is used when the prompt names no highway
const DefaultHighway = "5"

var (
	highwayPattern = regexp.MustCompile(`\b(?:I[-\s]?|SR[-\s]?|HWY[-\s]?|HIGHWAY[-\s]?)*(\d{1,3})\b`)
	bulletSplit    = regexp.MustCompile(`\s*-\s+`)
)

// page chrome that is never part of an incident report
var noise = []string{
	"ENTER HIGHWAY NUMBER",
	"CHECK CURRENT",
	"MAPS",
	"QUICKMAP",
	"CONTACT US",
	"ACCESSIBILITY",
	"PRIVACY POLICY",
	"CONDITIONS OF USE",
	"BACK TO TOP",
	"KNOW BEFORE YOU GO",
}

// HighwayNumber finds the first highway number in prompt, such as "I-80" or "SR 99"
func HighwayNumber(prompt string) string {
	m := highwayPattern.FindStringSubmatch(strings.ToUpper(prompt))
	if m == nil {
		return DefaultHighway
	}
	return m[1]
}

// ExtractIncidents keeps the report lines between the first "[IN THE ... AREA" heading and the page footer
func ExtractIncidents(lines []string) string {
	var captured []string
	capturing := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)

		if strings.HasPrefix(upper, "[IN THE") && strings.Contains(upper, "AREA") {
			capturing = true
		}
		if capturing {
			captured = append(captured, line)
		}
		if strings.Contains(upper, "CONDITIONS OF USE") || strings.Contains(upper, "PRIVACY POLICY") {
			break
		}
	}

	clean := captured[:0]
	for _, line := range captured {
		if !isNoise(line) {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

func isNoise(line string) bool {
	upper := strings.ToUpper(line)
	for _, n := range noise {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

// NormalizeBullets splits a single-line "- a - b" summary into one bullet per line.
// Multi-line text is returned unchanged.
func NormalizeBullets(text string) string {
	if strings.Contains(strings.TrimSpace(text), "\n") {
		return text
	}

	var bullets []string
	for _, part := range bulletSplit.Split(text, -1) {
		if part = strings.TrimSpace(part); part != "" {
			bullets = append(bullets, "- "+part)
		}
	}
	return strings.Join(bullets, "\n")
}
