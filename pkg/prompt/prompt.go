// Package prompt assembles fix-generation requests from issues and their
// enrichment context. Assembly is pure string work: no network calls, fully
// deterministic given its inputs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/issue"
)

// Template identifies one of the five base prompt templates.
type Template string

const (
	// TemplateCode covers StaticAnalysis and SoftwareComposition issues.
	TemplateCode Template = "code"

	// TemplateIaC covers CloudPosture issues addressed by an IaC file.
	TemplateIaC Template = "iac"

	// TemplateCloud covers CloudPosture issues addressed by a live resource.
	TemplateCloud Template = "cloud"

	// TemplatePipeline covers PipelineConfig issues.
	TemplatePipeline Template = "pipeline"

	// TemplateRuntime covers RuntimeAlert issues.
	TemplateRuntime Template = "runtime"
)

// Select maps an issue to its prompt template. The CloudPosture split uses
// the same disambiguation as the action router: a filePath means IaC.
func Select(iss *issue.Issue) (Template, error) {
	switch iss.Category {
	case issue.StaticAnalysis, issue.SoftwareComposition:
		return TemplateCode, nil
	case issue.CloudPosture:
		if iss.Location.FilePath != "" {
			return TemplateIaC, nil
		}
		return TemplateCloud, nil
	case issue.PipelineConfig:
		return TemplatePipeline, nil
	case issue.RuntimeAlert:
		return TemplateRuntime, nil
	default:
		return "", errors.E(errors.KindRouting, "prompt.Select",
			fmt.Sprintf("no prompt template for category %q", iss.Category))
	}
}

// Build assembles the full fix-generation request for an issue. The base
// template text is followed by the enrichment context summary and, when the
// issue carries code-derived hints, a labeled hints block appended verbatim.
func Build(iss *issue.Issue, enrichment *core.EnrichmentContext) (string, error) {
	tmpl, err := Select(iss)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	switch tmpl {
	case TemplateCode:
		fmt.Fprintf(&b, "A %s severity finding was reported in %s (branch %s): %s.\n",
			iss.Severity, iss.Location.Repository, branchOrDefault(iss), iss.Description)
		b.WriteString("Propose a fix as a unified diff patch against the repository.")
	case TemplateIaC:
		fmt.Fprintf(&b, "The infrastructure-as-code file %s in %s is misconfigured: %s.\n",
			iss.Location.FilePath, iss.Location.Repository, iss.Description)
		b.WriteString("Propose a fix as a unified diff patch against the file.")
	case TemplateCloud:
		fmt.Fprintf(&b, "Cloud resource %s in region %s has a posture finding: %s.\n",
			iss.Location.ResourceID, iss.Location.Region, iss.Description)
		b.WriteString("Propose a remediation as CLI commands.")
	case TemplatePipeline:
		fmt.Fprintf(&b, "The CI/CD pipeline configuration at %s in %s has a security issue: %s.\n",
			iss.Location.FilePath, iss.Location.Repository, iss.Description)
		b.WriteString("Propose a fix for the pipeline configuration as a unified diff patch.")
	case TemplateRuntime:
		fmt.Fprintf(&b, "Runtime alert for workload %s: %s.\n",
			iss.Location.ResourceID, iss.Description)
		b.WriteString("Propose an isolation or containment action and explain the blast radius.")
	}

	if enrichment != nil {
		b.WriteString("\n\nContext:\n")
		if enrichment.Application.Name != "" {
			fmt.Fprintf(&b, "- application: %s\n", enrichment.Application.Name)
		}
		if enrichment.Ownership.Team != "" || enrichment.Ownership.Owner != "" {
			fmt.Fprintf(&b, "- ownership: %s / %s\n", enrichment.Ownership.Team, enrichment.Ownership.Owner)
		}
		if len(enrichment.IaCReferences) > 0 {
			fmt.Fprintf(&b, "- iac references: %s\n", strings.Join(enrichment.IaCReferences, ", "))
		}
		if len(enrichment.CICDConfigs) > 0 {
			fmt.Fprintf(&b, "- ci/cd configs: %s\n", strings.Join(enrichment.CICDConfigs, ", "))
		}
		if enrichment.Git.RepoURL != "" {
			fmt.Fprintf(&b, "- repository: %s\n", enrichment.Git.RepoURL)
		}
		if len(enrichment.Git.CommitHistory) > 0 {
			fmt.Fprintf(&b, "- recent commits: %s\n", strings.Join(enrichment.Git.CommitHistory, "; "))
		}
	}

	if iss.HasEnrichmentHints() {
		b.WriteString("\nHints:\n")
		if iss.RiskScore > 0 {
			fmt.Fprintf(&b, "- risk score: %.2f\n", iss.RiskScore)
		}
		if iss.Language != "" {
			fmt.Fprintf(&b, "- language: %s\n", iss.Language)
		}
		if iss.FileOwner != "" {
			fmt.Fprintf(&b, "- file owner: %s\n", iss.FileOwner)
		}
		if iss.CodeSnippet != "" {
			fmt.Fprintf(&b, "- code snippet:\n%s\n", iss.CodeSnippet)
		}
	}

	return b.String(), nil
}

func branchOrDefault(iss *issue.Issue) string {
	if iss.Location.Branch != "" {
		return iss.Location.Branch
	}
	return "main"
}
