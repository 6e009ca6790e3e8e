// Package severity maps CVSS base scores to qualitative severity ratings.
package severity

import "strings"

// Level represents a qualitative severity rating.
type Level string

const (
	// Critical - CVSS 9.0 to 10.0.
	Critical Level = "critical"

	// High - CVSS 7.0 to 8.9.
	High Level = "high"

	// Medium - CVSS 4.0 to 6.9.
	Medium Level = "medium"

	// Low - CVSS 0.1 to 3.9.
	Low Level = "low"

	// Info - CVSS 0.0, rated "None" by the CVSS v3 specification.
	Info Level = "info"

	// Unknown - no score available.
	Unknown Level = "unknown"
)

// String returns the string representation of the severity level.
func (l Level) String() string {
	return string(l)
}

// Label returns the rating as NVD prints it (e.g., "CRITICAL", "NONE").
func (l Level) Label() string {
	switch l {
	case Info:
		return "NONE"
	case Critical, High, Medium, Low:
		return strings.ToUpper(string(l))
	default:
		return "N/A"
	}
}

// FromCVSS converts a CVSS score (0.0-10.0) to a severity level.
// Based on CVSS v3.x severity ratings:
//   - 9.0-10.0: Critical
//   - 7.0-8.9: High
//   - 4.0-6.9: Medium
//   - 0.1-3.9: Low
//   - 0.0: Info
//
// Scores outside 0-10 are Unknown.
func FromCVSS(score float64) Level {
	switch {
	case score < 0 || score > 10:
		return Unknown
	case score >= 9.0:
		return Critical
	case score >= 7.0:
		return High
	case score >= 4.0:
		return Medium
	case score > 0:
		return Low
	default:
		return Info
	}
}

// FromNVD normalizes an NVD baseSeverity string ("CRITICAL", "HIGH", ...).
func FromNVD(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return Critical
	case "HIGH":
		return High
	case "MEDIUM":
		return Medium
	case "LOW":
		return Low
	case "NONE":
		return Info
	default:
		return Unknown
	}
}
