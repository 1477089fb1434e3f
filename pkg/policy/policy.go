// Package policy decides, ahead of any workflow run, how an issue may be
// remediated. Policies are evaluated first-match in declaration order; the
// decision gates whether the orchestrator runs the workflow at all and whether
// automatic execution is permitted regardless of fix confidence.
package policy

import (
	"fmt"
	"path"

	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/shared/severity"
)

// Effect is the action a matching policy prescribes.
type Effect string

const (
	// EffectAllowAuto permits automatic execution when confidence allows it.
	EffectAllowAuto Effect = "allow_auto"

	// EffectRequireApproval forces the approval path even for high-confidence
	// fixes.
	EffectRequireApproval Effect = "require_approval"

	// EffectSkip excludes the issue from remediation entirely.
	EffectSkip Effect = "skip"
)

// Rule matches a class of issues and prescribes an effect. Empty match fields
// are wildcards.
type Rule struct {
	// ID identifies the rule in decisions and audit events.
	ID string `yaml:"id" json:"id"`

	// Description explains the rule's intent to operators.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Categories restricts the rule to these issue categories.
	Categories []issue.Category `yaml:"categories,omitempty" json:"categories,omitempty"`

	// MinSeverity restricts the rule to issues at or above this severity.
	MinSeverity severity.Level `yaml:"min_severity,omitempty" json:"min_severity,omitempty"`

	// Repositories restricts the rule to issues located in these repositories.
	// Entries are path.Match globs, so "https://github.com/remedly/*" covers
	// an organization; a pattern without wildcards matches exactly.
	Repositories []string `yaml:"repositories,omitempty" json:"repositories,omitempty"`

	// Effect is applied when the rule matches.
	Effect Effect `yaml:"effect" json:"effect"`
}

// Decision is the outcome of evaluating an issue against the rule set.
type Decision struct {
	// Remediate reports whether the issue should enter the workflow.
	Remediate bool `json:"remediate"`

	// AllowAutomatic reports whether automatic execution is permitted.
	// When false a successful fix always routes to human approval.
	AllowAutomatic bool `json:"allow_automatic"`

	// RuleID names the rule that produced this decision, or "default".
	RuleID string `json:"rule_id"`
}

// Engine evaluates issues against an ordered rule set. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	rules []Rule
}

// NewEngine validates the rule set and builds an engine. An empty rule set is
// valid: every issue then falls through to the default decision.
func NewEngine(rules []Rule) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("policy: rule %d has no id", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("policy: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		switch r.Effect {
		case EffectAllowAuto, EffectRequireApproval, EffectSkip:
		default:
			return nil, fmt.Errorf("policy: rule %q has unknown effect %q", r.ID, r.Effect)
		}
		for _, cat := range r.Categories {
			if !cat.IsValid() {
				return nil, fmt.Errorf("policy: rule %q matches unknown category %q", r.ID, cat)
			}
		}
		for _, pattern := range r.Repositories {
			if _, err := path.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("policy: rule %q has malformed repository pattern %q: %w", r.ID, pattern, err)
			}
		}
	}
	return &Engine{rules: rules}, nil
}

// DefaultRules is the rule set applied when an agent configures none: runtime
// alerts on critical workloads always need a human, everything else may
// auto-remediate subject to confidence.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "runtime-critical-manual",
			Description: "Isolating a workload is disruptive; a human confirms critical runtime alerts.",
			Categories:  []issue.Category{issue.RuntimeAlert},
			MinSeverity: severity.Critical,
			Effect:      EffectRequireApproval,
		},
	}
}

// Evaluate returns the decision for an issue. Rules are checked in order and
// the first match wins; with no match the issue is remediable with automatic
// execution permitted.
func (e *Engine) Evaluate(iss *issue.Issue) Decision {
	for _, r := range e.rules {
		if !r.matches(iss) {
			continue
		}
		switch r.Effect {
		case EffectSkip:
			return Decision{Remediate: false, AllowAutomatic: false, RuleID: r.ID}
		case EffectRequireApproval:
			return Decision{Remediate: true, AllowAutomatic: false, RuleID: r.ID}
		default:
			return Decision{Remediate: true, AllowAutomatic: true, RuleID: r.ID}
		}
	}
	return Decision{Remediate: true, AllowAutomatic: true, RuleID: "default"}
}

func (r *Rule) matches(iss *issue.Issue) bool {
	if len(r.Categories) > 0 && !containsCategory(r.Categories, iss.Category) {
		return false
	}
	if r.MinSeverity != "" && r.MinSeverity.IsValid() && !iss.Severity.IsAtLeast(r.MinSeverity) {
		return false
	}
	if len(r.Repositories) > 0 && !matchesRepository(r.Repositories, iss.Location.Repository) {
		return false
	}
	return true
}

func containsCategory(cats []issue.Category, c issue.Category) bool {
	for _, cat := range cats {
		if cat == c {
			return true
		}
	}
	return false
}

func matchesRepository(patterns []string, repo string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, repo); err == nil && ok {
			return true
		}
	}
	return false
}
