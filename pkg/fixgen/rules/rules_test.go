package rules

import (
	"context"
	"regexp"
	"strings"
	"testing"

	sdkerrors "github.com/remedly/sdk/pkg/errors"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); err != nil {
		t.Errorf("New(nil) error = %v, want defaults", err)
	}
	if _, err := New([]Rule{{Pattern: regexp.MustCompile(`x`)}}); err == nil {
		t.Error("New() with missing id should fail")
	}
	if _, err := New([]Rule{{ID: "a"}}); err == nil {
		t.Error("New() with missing pattern should fail")
	}
	if _, err := New([]Rule{{ID: "a", Pattern: regexp.MustCompile(`x`), Confidence: 120}}); err == nil {
		t.Error("New() with out-of-range confidence should fail")
	}
}

func TestGenerateFixMatchesRules(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name           string
		prompt         string
		wantRuleID     string
		wantConfidence float64
		wantInFix      string
	}{
		{
			name:           "s3 public acls",
			prompt:         `Misconfigured resource:` + "\n" + `block_public_acls = false`,
			wantRuleID:     "tf-s3-public-read",
			wantConfidence: 95,
			wantInFix:      "+block_public_acls = true",
		},
		{
			name:           "open security group",
			prompt:         `cidr_blocks = ["0.0.0.0/0"]`,
			wantRuleID:     "tf-security-group-open",
			wantConfidence: 82,
			wantInFix:      `+cidr_blocks = ["10.0.0.0/8"]`,
		},
		{
			name:           "privileged container",
			prompt:         "securityContext:\n  privileged: true",
			wantRuleID:     "k8s-privileged-container",
			wantConfidence: 93,
			wantInFix:      "+privileged: false",
		},
		{
			name:           "run as root",
			prompt:         "runAsUser: 0\n",
			wantRuleID:     "k8s-run-as-root",
			wantConfidence: 86,
			wantInFix:      "+runAsUser: 1000",
		},
		{
			name:           "skipped tests",
			prompt:         "steps:\n  - run: mvn package -DskipTests",
			wantRuleID:     "ci-skip-tests",
			wantConfidence: 84,
			wantInFix:      "+run: npm test",
		},
		{
			name:           "hardcoded secret",
			prompt:         `env:` + "\n" + `  token: ghp_abcdef123456`,
			wantRuleID:     "ci-hardcoded-secret",
			wantConfidence: 78,
			wantInFix:      "+token: ${{ secrets.REDACTED }}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix, err := g.GenerateFix(context.Background(), tt.prompt)
			if err != nil {
				t.Fatalf("GenerateFix() error = %v", err)
			}
			if fix.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", fix.Confidence, tt.wantConfidence)
			}
			if !strings.Contains(fix.Rationale, "["+tt.wantRuleID+"]") {
				t.Errorf("rationale = %q, want rule %s", fix.Rationale, tt.wantRuleID)
			}
			if !strings.Contains(fix.Content, tt.wantInFix) {
				t.Errorf("content = %q, want to contain %q", fix.Content, tt.wantInFix)
			}
		})
	}
}

func TestGenerateFixDeterministic(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	prompt := "publicly_accessible = true"
	first, err := g.GenerateFix(context.Background(), prompt)
	if err != nil {
		t.Fatalf("GenerateFix() error = %v", err)
	}
	second, err := g.GenerateFix(context.Background(), prompt)
	if err != nil {
		t.Fatalf("GenerateFix() error = %v", err)
	}
	if *first != *second {
		t.Errorf("fixes differ: %+v vs %+v", first, second)
	}
}

func TestGenerateFixNoMatch(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = g.GenerateFix(context.Background(), "A perfectly fine configuration.")
	if err == nil {
		t.Fatal("GenerateFix() should fail with no matching rule")
	}
	if got := sdkerrors.GetKind(err); got != sdkerrors.KindFixGeneration {
		t.Errorf("kind = %v, want fix_generation", got)
	}
}

func TestGenerateFixCanceledContext(t *testing.T) {
	g, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.GenerateFix(ctx, "privileged: true"); err == nil {
		t.Error("GenerateFix() with canceled context should fail")
	}
}
