// Package mocks provides deterministic mock implementations of the
// collaborator interfaces for testing and local demos. Confidence scores and
// latency are always explicit; nothing here is randomized.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/issue"
)

// =============================================================================
// Mock Enricher
// =============================================================================

// MockEnricher is a mock implementation of core.Enricher.
type MockEnricher struct {
	// FetchEnrichmentFn is called when FetchEnrichment is invoked
	FetchEnrichmentFn func(ctx context.Context, iss *issue.Issue) (*core.EnrichmentContext, error)

	// Latency is an optional artificial delay before responding
	Latency time.Duration

	// Call tracking
	FetchEnrichmentCalls []FetchEnrichmentCall
}

type FetchEnrichmentCall struct {
	Issue *issue.Issue
}

func (m *MockEnricher) Name() string { return "mock-enricher" }

func (m *MockEnricher) FetchEnrichment(ctx context.Context, iss *issue.Issue) (*core.EnrichmentContext, error) {
	m.FetchEnrichmentCalls = append(m.FetchEnrichmentCalls, FetchEnrichmentCall{Issue: iss})
	if err := wait(ctx, m.Latency); err != nil {
		return nil, err
	}
	if m.FetchEnrichmentFn != nil {
		return m.FetchEnrichmentFn(ctx, iss)
	}
	return DefaultEnrichment(iss), nil
}

// DefaultEnrichment returns the canned context used when no FetchEnrichmentFn
// is set.
func DefaultEnrichment(iss *issue.Issue) *core.EnrichmentContext {
	repoURL := "https://github.com/example/monitored-app"
	if iss.Location.Repository != "" {
		repoURL = iss.Location.Repository
	}
	return &core.EnrichmentContext{
		Application: core.Application{
			Name:      "Monitored-App-1",
			Structure: "Microservices architecture with web frontend",
		},
		Ownership: core.Ownership{
			Team:  "Platform Security",
			Owner: "jane.doe@example.com",
		},
		IaCReferences: []string{"s3.tf", "iam.tf"},
		CICDConfigs:   []string{".github/workflows/deploy.yml"},
		Git: core.GitInfo{
			RepoURL:       repoURL,
			CommitHistory: []string{"feat: add new login page", "fix: button alignment"},
		},
		Source: "mock",
	}
}

// Ensure MockEnricher implements core.Enricher
var _ core.Enricher = (*MockEnricher)(nil)

// =============================================================================
// Mock Fix Generator
// =============================================================================

// MockFixGenerator is a mock implementation of core.FixGenerator.
type MockFixGenerator struct {
	// GenerateFixFn is called when GenerateFix is invoked
	GenerateFixFn func(ctx context.Context, promptText string) (*core.ProposedFix, error)

	// Confidence used by the default response when GenerateFixFn is nil
	Confidence float64

	// Latency is an optional artificial delay before responding
	Latency time.Duration

	// Call tracking
	GenerateFixCalls []GenerateFixCall
}

type GenerateFixCall struct {
	Prompt string
}

func (m *MockFixGenerator) Name() string { return "mock-generator" }

func (m *MockFixGenerator) GenerateFix(ctx context.Context, promptText string) (*core.ProposedFix, error) {
	m.GenerateFixCalls = append(m.GenerateFixCalls, GenerateFixCall{Prompt: promptText})
	if err := wait(ctx, m.Latency); err != nil {
		return nil, err
	}
	if m.GenerateFixFn != nil {
		return m.GenerateFixFn(ctx, promptText)
	}
	return &core.ProposedFix{
		Content:    "--- a/package.json\n+++ b/package.json\n@@ -10,7 +10,7 @@\n-    \"express\": \"4.17.1\",\n+    \"express\": \"4.18.2\",",
		Confidence: m.Confidence,
		Rationale:  "Upgrading express from 4.17.1 to 4.18.2 resolves known vulnerabilities.",
	}, nil
}

// Ensure MockFixGenerator implements core.FixGenerator
var _ core.FixGenerator = (*MockFixGenerator)(nil)

// =============================================================================
// Mock Executor
// =============================================================================

// MockExecutor is a mock implementation of core.Executor.
type MockExecutor struct {
	// ApplyFn is called when Apply is invoked
	ApplyFn func(ctx context.Context, actionType string, payload map[string]any) (*core.ExecutionResult, error)

	// Latency is an optional artificial delay before responding
	Latency time.Duration

	// Call tracking
	ApplyCalls []ApplyCall
}

type ApplyCall struct {
	ActionType string
	Payload    map[string]any
}

func (m *MockExecutor) Name() string { return "mock-executor" }

func (m *MockExecutor) Apply(ctx context.Context, actionType string, payload map[string]any) (*core.ExecutionResult, error) {
	m.ApplyCalls = append(m.ApplyCalls, ApplyCall{ActionType: actionType, Payload: payload})
	if err := wait(ctx, m.Latency); err != nil {
		return nil, err
	}
	if m.ApplyFn != nil {
		return m.ApplyFn(ctx, actionType, payload)
	}
	return &core.ExecutionResult{
		JobID:       "job-" + uuid.NewString(),
		Status:      core.JobSuccess,
		Details:     "Successfully applied remediation via " + actionType + ".",
		CompletedAt: time.Now(),
	}, nil
}

// Ensure MockExecutor implements core.Executor
var _ core.Executor = (*MockExecutor)(nil)

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
