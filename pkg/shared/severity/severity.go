// Package severity provides unified severity level definitions for security
// issues across the SDK and the remediation platform.
//
// IMPORTANT: This package is shared between the SDK and the platform backend.
// Any changes must be backward compatible or coordinated across both projects.
package severity

import "strings"

// Level represents a severity level for a security issue.
type Level string

const (
	// Critical - Immediate action required. Actively exploited or trivially exploitable.
	Critical Level = "critical"

	// High - Serious issue that should be addressed urgently.
	High Level = "high"

	// Medium - Moderate risk, should be addressed in normal development cycle.
	Medium Level = "medium"

	// Low - Minor issue, address when convenient.
	Low Level = "low"

	// Unknown - Severity could not be determined.
	Unknown Level = "unknown"
)

// AllLevels returns all severity levels in order of priority (highest first).
func AllLevels() []Level {
	return []Level{Critical, High, Medium, Low, Unknown}
}

// String returns the string representation of the severity level.
func (l Level) String() string {
	return string(l)
}

// Priority returns the numeric priority of the severity level.
// Higher numbers = higher priority.
func (l Level) Priority() int {
	switch l {
	case Critical:
		return 4
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// IsHigherThan returns true if this severity is higher than the other.
func (l Level) IsHigherThan(other Level) bool {
	return l.Priority() > other.Priority()
}

// IsAtLeast returns true if this severity is at least as high as the other.
func (l Level) IsAtLeast(other Level) bool {
	return l.Priority() >= other.Priority()
}

// IsValid reports whether the level is one of the known severity levels.
func (l Level) IsValid() bool {
	switch l {
	case Critical, High, Medium, Low, Unknown:
		return true
	default:
		return false
	}
}

// FromString normalizes various severity string formats to a standard Level.
// Handles common formats from upstream issue sources:
//   - Risk platforms: Critical, High, Medium, Low
//   - SARIF: error, warning, note
//   - CVSS buckets: CRITICAL, HIGH, MEDIUM, LOW
func FromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL", "CRIT":
		return Critical
	case "HIGH", "ERROR":
		return High
	case "MEDIUM", "MODERATE", "WARNING", "WARN":
		return Medium
	case "LOW", "MINOR", "NOTE", "INFO":
		return Low
	default:
		return Unknown
	}
}
