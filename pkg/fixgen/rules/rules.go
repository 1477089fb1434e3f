// Package rules implements a deterministic fix generator for well-known IaC
// and pipeline misconfigurations. Each rule pairs a pattern with a known-good
// replacement and a fixed confidence score; no model call is involved, so the
// same issue always yields the same fix.
//
// The generator matches against the configuration excerpt embedded in the
// prompt. Issues no rule covers return a fix-generation error so a calling
// chain can fall through to an LLM-backed generator.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/remedly/sdk/pkg/core"
	sdkerrors "github.com/remedly/sdk/pkg/errors"
)

// Rule is one known remediation.
type Rule struct {
	// ID identifies the rule in rationales and logs.
	ID string

	// Name is a human-readable summary of the misconfiguration.
	Name string

	// Pattern matches the misconfigured fragment.
	Pattern *regexp.Regexp

	// Replacement is the known-good rewrite of the matched fragment.
	Replacement string

	// Explanation tells the reviewer what changed and why.
	Explanation string

	// Confidence is the fixed score for fixes from this rule. Mechanical
	// rewrites score above the automatic-execution threshold; fixes that
	// change reachable behavior score below it.
	Confidence float64
}

// DefaultRules covers the Terraform, Kubernetes and CI misconfigurations the
// remediation platform sees most.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "tf-s3-public-read",
			Name:        "S3 Bucket Public Read Access",
			Pattern:     regexp.MustCompile(`block_public_acls\s*=\s*false`),
			Replacement: "block_public_acls = true",
			Explanation: "Changed block_public_acls from false to true to prevent public access to S3 bucket objects.",
			Confidence:  95,
		},
		{
			ID:          "tf-security-group-open",
			Name:        "Security Group Open to Internet",
			Pattern:     regexp.MustCompile(`cidr_blocks\s*=\s*\["0\.0\.0\.0/0"\]`),
			Replacement: `cidr_blocks = ["10.0.0.0/8"]`,
			Explanation: "Restricted CIDR blocks from 0.0.0.0/0 (internet) to 10.0.0.0/8 (private network) to limit access.",
			Confidence:  82,
		},
		{
			ID:          "tf-rds-public",
			Name:        "RDS Instance Publicly Accessible",
			Pattern:     regexp.MustCompile(`publicly_accessible\s*=\s*true`),
			Replacement: "publicly_accessible = false",
			Explanation: "Changed publicly_accessible from true to false to prevent direct internet access to RDS instance.",
			Confidence:  88,
		},
		{
			ID:          "k8s-privileged-container",
			Name:        "Privileged Container",
			Pattern:     regexp.MustCompile(`privileged:\s*true`),
			Replacement: "privileged: false",
			Explanation: "Changed privileged from true to false to remove elevated privileges from container.",
			Confidence:  93,
		},
		{
			ID:          "k8s-run-as-root",
			Name:        "Container Running as Root",
			Pattern:     regexp.MustCompile(`runAsUser:\s*0\b`),
			Replacement: "runAsUser: 1000",
			Explanation: "Changed runAsUser from 0 (root) to 1000 (non-root user) to improve security posture.",
			Confidence:  86,
		},
		{
			ID:          "k8s-allow-privilege-escalation",
			Name:        "Allow Privilege Escalation",
			Pattern:     regexp.MustCompile(`allowPrivilegeEscalation:\s*true`),
			Replacement: "allowPrivilegeEscalation: false",
			Explanation: "Changed allowPrivilegeEscalation from true to false to prevent privilege escalation attacks.",
			Confidence:  93,
		},
		{
			ID:          "ci-skip-tests",
			Name:        "Tests Skipped in Pipeline",
			Pattern:     regexp.MustCompile(`run:\s*\S.*(?:--skip[_-]?tests|-DskipTests)`),
			Replacement: "run: npm test",
			Explanation: "Removed test skipping flags to ensure tests run before deployment.",
			Confidence:  84,
		},
		{
			ID:          "ci-hardcoded-secret",
			Name:        "Hardcoded Secret in Pipeline",
			Pattern:     regexp.MustCompile(`(password|token|secret):\s*["']?[A-Za-z0-9_-]{8,}["']?`),
			Replacement: `$1: $${{ secrets.REDACTED }}`,
			Explanation: "Replaced hardcoded credential with a repository secret reference. Add the value to the repository secrets.",
			Confidence:  78,
		},
	}
}

// Generator is a deterministic, rules-based fix generator. It implements
// core.FixGenerator.
type Generator struct {
	rules []Rule
}

// New creates a rules generator; nil rules use the defaults.
func New(ruleSet []Rule) (*Generator, error) {
	if ruleSet == nil {
		ruleSet = DefaultRules()
	}
	for i, r := range ruleSet {
		if r.ID == "" || r.Pattern == nil {
			return nil, fmt.Errorf("rules: rule %d needs an id and a pattern", i)
		}
		if r.Confidence < 0 || r.Confidence > 100 {
			return nil, fmt.Errorf("rules: rule %q confidence %v out of range", r.ID, r.Confidence)
		}
	}
	return &Generator{rules: ruleSet}, nil
}

// Name identifies the collaborator in logs and telemetry.
func (g *Generator) Name() string { return "rules" }

// GenerateFix applies the first matching rule to the configuration excerpt in
// the prompt. The fix content is a unified-diff style fragment of the matched
// line before and after rewriting.
func (g *Generator) GenerateFix(ctx context.Context, promptText string) (*core.ProposedFix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range g.rules {
		match := r.Pattern.FindString(promptText)
		if match == "" {
			continue
		}

		fixed := r.Pattern.ReplaceAllString(match, r.Replacement)
		var b strings.Builder
		b.WriteString("-" + match + "\n")
		b.WriteString("+" + fixed + "\n")

		return &core.ProposedFix{
			Content:    b.String(),
			Confidence: r.Confidence,
			Rationale:  fmt.Sprintf("[%s] %s", r.ID, r.Explanation),
		}, nil
	}

	return nil, sdkerrors.E(sdkerrors.KindFixGeneration, "rules.GenerateFix", "no remediation rule matches the issue")
}

var _ core.FixGenerator = (*Generator)(nil)
