// Package action derives execution actions from issues and proposed fixes.
// Routing is a pure function: no I/O, no side effects, deterministic given
// its inputs.
package action

import (
	"fmt"

	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/issue"
)

// Type is the categorical label telling the execution collaborator what kind
// of change to apply.
type Type string

const (
	// GitOpsApplyPatch commits a patch to a source repository.
	GitOpsApplyPatch Type = "gitops-apply-patch"

	// IaCCommitPatch commits a patch to an infrastructure-as-code file.
	IaCCommitPatch Type = "iac-commit-patch"

	// CloudApplyRemediation runs a remediation script against a live cloud resource.
	CloudApplyRemediation Type = "cloud-apply-remediation"

	// PipelineUpdateConfig patches a CI/CD pipeline configuration file.
	PipelineUpdateConfig Type = "pipeline-update-config"

	// RuntimeIsolate isolates a running workload.
	RuntimeIsolate Type = "runtime-isolate"
)

// String returns the string representation of the action type.
func (t Type) String() string {
	return string(t)
}

// DefaultBranch is used when a code-addressed issue does not name a branch.
const DefaultBranch = "main"

// commitMessagePrefixLen caps how much of the issue description ends up in
// generated commit messages.
const commitMessagePrefixLen = 50

// ExecutionAction is the derived instruction handed to the execution
// collaborator. It is never persisted independently.
type ExecutionAction struct {
	Type    Type           `json:"type"`
	Payload map[string]any `json:"payload"`
}

// CommitMessage builds the conventional commit message shared by all
// repository-addressed action types.
func CommitMessage(iss *issue.Issue) string {
	desc := iss.Description
	// Truncate on rune boundaries; a byte slice could split a multibyte
	// character and leave invalid UTF-8 in the message.
	if runes := []rune(desc); len(runes) > commitMessagePrefixLen {
		desc = string(runes[:commitMessagePrefixLen])
	}
	return fmt.Sprintf("fix: remediate %s - %s", iss.ID, desc)
}

// Route maps an issue and its proposed fix to an execution action.
//
// CloudPosture issues are disambiguated by the presence of location.filePath:
// with a filePath the issue is treated as IaC-addressed, without one it is
// treated as a live cloud resource. When both filePath and resourceId are
// present the filePath branch wins. A CloudPosture issue carrying neither is
// unroutable and returns an explicit error rather than a guess.
func Route(iss *issue.Issue, fix *core.ProposedFix) (*ExecutionAction, error) {
	const op = "action.Route"

	branch := iss.Location.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	switch iss.Category {
	case issue.StaticAnalysis, issue.SoftwareComposition:
		return &ExecutionAction{
			Type: GitOpsApplyPatch,
			Payload: map[string]any{
				"repository":    iss.Location.Repository,
				"branch":        branch,
				"patch":         fix.Content,
				"commitMessage": CommitMessage(iss),
			},
		}, nil

	case issue.CloudPosture:
		if iss.Location.FilePath != "" {
			return &ExecutionAction{
				Type: IaCCommitPatch,
				Payload: map[string]any{
					"repository":    iss.Location.Repository,
					"branch":        branch,
					"filePath":      iss.Location.FilePath,
					"patch":         fix.Content,
					"commitMessage": CommitMessage(iss),
				},
			}, nil
		}
		if iss.Location.ResourceID == "" {
			return nil, errors.E(errors.KindRouting, op,
				fmt.Sprintf("cloud posture issue %s has neither filePath nor resourceId", iss.ID))
		}
		return &ExecutionAction{
			Type: CloudApplyRemediation,
			Payload: map[string]any{
				"resourceId":        iss.Location.ResourceID,
				"region":            iss.Location.Region,
				"remediationScript": fix.Content,
			},
		}, nil

	case issue.PipelineConfig:
		return &ExecutionAction{
			Type: PipelineUpdateConfig,
			Payload: map[string]any{
				"repository":    iss.Location.Repository,
				"branch":        branch,
				"filePath":      iss.Location.FilePath,
				"patch":         fix.Content,
				"commitMessage": CommitMessage(iss),
			},
		}, nil

	case issue.RuntimeAlert:
		return &ExecutionAction{
			Type: RuntimeIsolate,
			Payload: map[string]any{
				"resourceId": iss.Location.ResourceID,
				"reason":     fix.Rationale,
				"action":     fix.Content,
			},
		}, nil

	default:
		// Unreachable for a validated issue; fail loudly, never default.
		return nil, errors.E(errors.KindRouting, op,
			fmt.Sprintf("unsupported issue category %q", iss.Category))
	}
}

// SuggestedAction returns a human-readable label for the remediation an
// approver would be authorizing. Unlike Route it is total: ambiguous issues
// fall back to a generic label instead of failing, because approval payloads
// are assembled even when automatic execution would not be possible.
func SuggestedAction(iss *issue.Issue) string {
	switch iss.Category {
	case issue.StaticAnalysis, issue.SoftwareComposition:
		return "Apply Git patch"
	case issue.CloudPosture:
		if iss.Location.FilePath != "" {
			return "Commit IaC patch"
		}
		return "Run cloud remediation script"
	case issue.PipelineConfig:
		return "Update pipeline configuration"
	case issue.RuntimeAlert:
		return "Isolate workload"
	default:
		return "Review proposed remediation"
	}
}
