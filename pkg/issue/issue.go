// Package issue defines the normalized representation of a security finding,
// independent of its originating scanner category. Issues are the immutable
// input to the AutoFix workflow.
package issue

import (
	"fmt"

	"github.com/remedly/sdk/pkg/shared/severity"
)

// Category identifies the source taxonomy of an issue.
// It is a closed enum: the action router and prompt builder switch over it
// exhaustively and fail loudly on anything else.
type Category string

const (
	// StaticAnalysis - findings from SAST scanners.
	StaticAnalysis Category = "static_analysis"

	// SoftwareComposition - findings from SCA / dependency scanners.
	SoftwareComposition Category = "software_composition"

	// CloudPosture - findings from CSPM scanners. Addressed either by an IaC
	// file (filePath present) or by a live cloud resource (resourceId present).
	CloudPosture Category = "cloud_posture"

	// PipelineConfig - findings in CI/CD pipeline configuration.
	PipelineConfig Category = "pipeline_config"

	// RuntimeAlert - findings from runtime detection.
	RuntimeAlert Category = "runtime_alert"
)

// AllCategories returns every known issue category.
func AllCategories() []Category {
	return []Category{StaticAnalysis, SoftwareComposition, CloudPosture, PipelineConfig, RuntimeAlert}
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// IsValid reports whether the category is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case StaticAnalysis, SoftwareComposition, CloudPosture, PipelineConfig, RuntimeAlert:
		return true
	default:
		return false
	}
}

// IsCodeDerived reports whether the category originates from source code
// scanning. Only code-derived issues carry enrichment hints.
func (c Category) IsCodeDerived() bool {
	return c == StaticAnalysis || c == SoftwareComposition
}

// ParseCategory normalizes upstream source labels (SAST, SCA, CSPM, PIPELINE,
// RUNTIME) to a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "SAST", "sast", string(StaticAnalysis):
		return StaticAnalysis, nil
	case "SCA", "sca", string(SoftwareComposition):
		return SoftwareComposition, nil
	case "CSPM", "cspm", string(CloudPosture):
		return CloudPosture, nil
	case "PIPELINE", "pipeline", string(PipelineConfig):
		return PipelineConfig, nil
	case "RUNTIME", "runtime", string(RuntimeAlert):
		return RuntimeAlert, nil
	default:
		return "", fmt.Errorf("unknown issue category %q", s)
	}
}

// Location describes where an issue lives. It is a sum of two addressing
// schemes: repository/branch/filePath for code, IaC and pipeline issues, and
// resourceId/region for cloud and runtime issues. The category determines
// which fields are semantically meaningful; consumers must not assume both
// schemes are populated.
type Location struct {
	// Repository URL or slug (code-addressed issues)
	Repository string `json:"repository,omitempty"`

	// Branch name. Defaults to "main" when routing if empty.
	Branch string `json:"branch,omitempty"`

	// Path of the affected file within the repository
	FilePath string `json:"file_path,omitempty"`

	// Cloud resource identifier (resource-addressed issues)
	ResourceID string `json:"resource_id,omitempty"`

	// Cloud region of the resource
	Region string `json:"region,omitempty"`
}

// Issue is a normalized security finding. It is immutable once constructed:
// the workflow engine never mutates its input.
type Issue struct {
	// Unique identifier, opaque to the workflow (required)
	ID string `json:"id"`

	// Source taxonomy (required)
	Category Category `json:"category"`

	// Ordinal severity
	Severity severity.Level `json:"severity"`

	// Addressing information
	Location Location `json:"location"`

	// Free-text description of the finding
	Description string `json:"description"`

	// Enrichment hints, present only for code-derived issues.

	// RiskScore in [0.0, 1.0] from the upstream risk platform
	RiskScore float64 `json:"risk_score,omitempty"`

	// CodeSnippet surrounding the finding
	CodeSnippet string `json:"code_snippet,omitempty"`

	// Language of the affected file
	Language string `json:"language,omitempty"`

	// FileOwner from CODEOWNERS or blame data
	FileOwner string `json:"file_owner,omitempty"`
}

// Validate checks that the issue carries the minimum data the workflow needs.
func (i *Issue) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("issue id is required")
	}
	if !i.Category.IsValid() {
		return fmt.Errorf("issue %s: unknown category %q", i.ID, i.Category)
	}
	if i.Description == "" {
		return fmt.Errorf("issue %s: description is required", i.ID)
	}
	return nil
}

// HasEnrichmentHints reports whether any code-derived enrichment hint is set.
func (i *Issue) HasEnrichmentHints() bool {
	return i.RiskScore > 0 || i.CodeSnippet != "" || i.Language != "" || i.FileOwner != ""
}
