package policy

import (
	"testing"

	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/shared/severity"
)

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name    string
		rules   []Rule
		wantErr bool
	}{
		{
			name:  "empty rule set is valid",
			rules: nil,
		},
		{
			name: "valid rules",
			rules: []Rule{
				{ID: "a", Effect: EffectSkip},
				{ID: "b", Effect: EffectAllowAuto},
			},
		},
		{
			name:    "missing id",
			rules:   []Rule{{Effect: EffectSkip}},
			wantErr: true,
		},
		{
			name: "duplicate id",
			rules: []Rule{
				{ID: "a", Effect: EffectSkip},
				{ID: "a", Effect: EffectAllowAuto},
			},
			wantErr: true,
		},
		{
			name:    "unknown effect",
			rules:   []Rule{{ID: "a", Effect: "escalate"}},
			wantErr: true,
		},
		{
			name:    "unknown category",
			rules:   []Rule{{ID: "a", Effect: EffectSkip, Categories: []issue.Category{"malware"}}},
			wantErr: true,
		},
		{
			name:    "malformed repository pattern",
			rules:   []Rule{{ID: "a", Effect: EffectSkip, Repositories: []string{"https://github.com/[broken"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	engine, err := NewEngine([]Rule{
		{ID: "skip-low", MinSeverity: "", Categories: []issue.Category{issue.StaticAnalysis}, Effect: EffectSkip},
		{ID: "catch-all", Effect: EffectRequireApproval},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	d := engine.Evaluate(&issue.Issue{ID: "i1", Category: issue.StaticAnalysis, Severity: severity.Low})
	if d.Remediate || d.RuleID != "skip-low" {
		t.Errorf("decision = %+v, want skip by skip-low", d)
	}

	d = engine.Evaluate(&issue.Issue{ID: "i2", Category: issue.RuntimeAlert, Severity: severity.High})
	if !d.Remediate || d.AllowAutomatic || d.RuleID != "catch-all" {
		t.Errorf("decision = %+v, want approval by catch-all", d)
	}
}

func TestEvaluateMatchers(t *testing.T) {
	engine, err := NewEngine([]Rule{
		{
			ID:           "prod-repo-manual",
			Repositories: []string{"https://github.com/example/payments"},
			Effect:       EffectRequireApproval,
		},
		{
			ID:          "critical-runtime",
			Categories:  []issue.Category{issue.RuntimeAlert},
			MinSeverity: severity.Critical,
			Effect:      EffectRequireApproval,
		},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	tests := []struct {
		name       string
		iss        issue.Issue
		wantAuto   bool
		wantRuleID string
	}{
		{
			name: "repository match",
			iss: issue.Issue{
				ID:       "i1",
				Category: issue.StaticAnalysis,
				Severity: severity.Medium,
				Location: issue.Location{Repository: "https://github.com/example/payments"},
			},
			wantAuto:   false,
			wantRuleID: "prod-repo-manual",
		},
		{
			name: "severity below threshold falls through",
			iss: issue.Issue{
				ID:       "i2",
				Category: issue.RuntimeAlert,
				Severity: severity.High,
			},
			wantAuto:   true,
			wantRuleID: "default",
		},
		{
			name: "critical runtime alert",
			iss: issue.Issue{
				ID:       "i3",
				Category: issue.RuntimeAlert,
				Severity: severity.Critical,
			},
			wantAuto:   false,
			wantRuleID: "critical-runtime",
		},
		{
			name: "no match gets the default decision",
			iss: issue.Issue{
				ID:       "i4",
				Category: issue.SoftwareComposition,
				Severity: severity.Critical,
			},
			wantAuto:   true,
			wantRuleID: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Evaluate(&tt.iss)
			if !d.Remediate {
				t.Fatalf("Remediate = false, want true")
			}
			if d.AllowAutomatic != tt.wantAuto {
				t.Errorf("AllowAutomatic = %v, want %v", d.AllowAutomatic, tt.wantAuto)
			}
			if d.RuleID != tt.wantRuleID {
				t.Errorf("RuleID = %q, want %q", d.RuleID, tt.wantRuleID)
			}
		})
	}
}

func TestEvaluateRepositoryGlobs(t *testing.T) {
	engine, err := NewEngine([]Rule{
		{
			ID:           "org-manual",
			Repositories: []string{"https://github.com/remedly/*"},
			Effect:       EffectRequireApproval,
		},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	tests := []struct {
		repo       string
		wantRuleID string
	}{
		{repo: "https://github.com/remedly/api", wantRuleID: "org-manual"},
		{repo: "https://github.com/remedly/web", wantRuleID: "org-manual"},
		// * does not cross a path separator; nested paths fall through.
		{repo: "https://github.com/remedly/api/fork", wantRuleID: "default"},
		{repo: "https://github.com/example/api", wantRuleID: "default"},
	}
	for _, tt := range tests {
		iss := issue.Issue{
			ID:       "i1",
			Category: issue.StaticAnalysis,
			Severity: severity.Medium,
			Location: issue.Location{Repository: tt.repo},
		}
		if d := engine.Evaluate(&iss); d.RuleID != tt.wantRuleID {
			t.Errorf("Evaluate(%q).RuleID = %q, want %q", tt.repo, d.RuleID, tt.wantRuleID)
		}
	}
}

func TestDefaultRules(t *testing.T) {
	engine, err := NewEngine(DefaultRules())
	if err != nil {
		t.Fatalf("NewEngine(DefaultRules()) error = %v", err)
	}

	d := engine.Evaluate(&issue.Issue{ID: "i1", Category: issue.RuntimeAlert, Severity: severity.Critical})
	if d.AllowAutomatic {
		t.Error("critical runtime alerts must not auto-remediate under default rules")
	}

	d = engine.Evaluate(&issue.Issue{ID: "i2", Category: issue.SoftwareComposition, Severity: severity.High})
	if !d.AllowAutomatic {
		t.Error("dependency issues may auto-remediate under default rules")
	}
}
