// Remedly AutoFix Agent - policy-driven remediation for security findings.
//
// The agent supports two deployment modes:
//
//  1. ONE-SHOT MODE (CI/CD or operator-driven):
//     autofix-agent -issues findings.json -dry-run
//
//  2. DAEMON MODE (continuous polling):
//     autofix-agent -daemon -config agent.yaml
//
// In dry-run mode the agent uses deterministic mock collaborators so the
// decision flow can be exercised without external services.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remedly/sdk/pkg/approval"
	"github.com/remedly/sdk/pkg/audit"
	"github.com/remedly/sdk/pkg/compress"
	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/enrich/contextgraph"
	ghenrich "github.com/remedly/sdk/pkg/enrich/github"
	"github.com/remedly/sdk/pkg/executor/grpcexec"
	"github.com/remedly/sdk/pkg/executor/httpexec"
	"github.com/remedly/sdk/pkg/fixgen"
	"github.com/remedly/sdk/pkg/fixgen/llm"
	"github.com/remedly/sdk/pkg/fixgen/rules"
	"github.com/remedly/sdk/pkg/gitenv"
	"github.com/remedly/sdk/pkg/history"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/metrics"
	"github.com/remedly/sdk/pkg/mocks"
	"github.com/remedly/sdk/pkg/orchestrator"
	"github.com/remedly/sdk/pkg/policy"
	"github.com/remedly/sdk/pkg/store"
	grpctransport "github.com/remedly/sdk/pkg/transport/grpc"
)

const (
	appName    = "autofix-agent"
	appVersion = "1.0.0"
)

// Config is the agent configuration.
type Config struct {
	Agent struct {
		Name            string        `yaml:"name"`
		PollInterval    time.Duration `yaml:"poll_interval"`
		MaxPollFailures int           `yaml:"max_poll_failures"`
		RateLimit       float64       `yaml:"rate_limit"`
		RateBurst       int           `yaml:"rate_burst"`
		Verbose         bool          `yaml:"verbose"`
	} `yaml:"agent"`

	Source struct {
		Kind       string        `yaml:"kind"` // http, static
		Endpoint   string        `yaml:"endpoint"`
		APIKey     string        `yaml:"api_key"`
		Timeout    time.Duration `yaml:"timeout"`
		IssuesFile string        `yaml:"issues_file"`
	} `yaml:"source"`

	Enricher struct {
		Kind     string        `yaml:"kind"` // context-graph, github, mock
		Endpoint string        `yaml:"endpoint"`
		APIKey   string        `yaml:"api_key"`
		Token    string        `yaml:"token"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"enricher"`

	Generator struct {
		Kind       string        `yaml:"kind"` // rules, llm, chain, mock
		Endpoint   string        `yaml:"endpoint"`
		APIKey     string        `yaml:"api_key"`
		Model      string        `yaml:"model"`
		Timeout    time.Duration `yaml:"timeout"`
		Confidence float64       `yaml:"confidence"` // mock only
	} `yaml:"generator"`

	Executor struct {
		Kind     string `yaml:"kind"` // http, grpc, mock
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`

		// gRPC settings
		Address            string `yaml:"address"`
		AgentID            string `yaml:"agent_id"`
		UseTLS             bool   `yaml:"use_tls"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"executor"`

	Policy struct {
		Rules []policy.Rule `yaml:"rules"`
	} `yaml:"policy"`

	Approvals struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"approvals"`

	History struct {
		Enabled      bool   `yaml:"enabled"`
		DatabasePath string `yaml:"database_path"`
		Compression  string `yaml:"compression"`
	} `yaml:"history"`

	Audit struct {
		Enabled       bool          `yaml:"enabled"`
		LogFile       string        `yaml:"log_file"`
		BufferSize    int           `yaml:"buffer_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"audit"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	issuesPath := flag.String("issues", "", "Path to a JSON file of issues (one-shot mode)")
	daemon := flag.Bool("daemon", false, "Run in daemon mode, polling the issue source")
	dryRun := flag.Bool("dry-run", false, "Use mock collaborators instead of remote services")
	verbose := flag.Bool("verbose", false, "Verbose output")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9402)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	var cfg Config
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *verbose {
		cfg.Agent.Verbose = true
	}
	if *issuesPath != "" {
		cfg.Source.Kind = "static"
		cfg.Source.IssuesFile = *issuesPath
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsAddr
	}
	if *dryRun {
		cfg.Enricher.Kind = "mock"
		cfg.Generator.Kind = "mock"
		cfg.Executor.Kind = "mock"
	}

	logLevel := core.LogLevelInfo
	if cfg.Agent.Verbose {
		logLevel = core.LogLevelDebug
	}
	logger := core.NewDefaultLogger(appName, logLevel)

	// CI context: when the agent runs inside a pipeline, fixes that land in
	// the approval queue are also posted as review comments on the current
	// merge request.
	ciEnv := gitenv.Detect(logger)
	if ciEnv != nil {
		logger.Info("CI environment: %s, repository %s", ciEnv.Provider(), ciEnv.CanonicalRepoName())
	}

	collector := buildCollector(&cfg)
	auditLogger := buildAudit(&cfg)
	if auditLogger != nil {
		auditLogger.Start()
		defer auditLogger.Stop()
	}

	archive := buildHistory(&cfg)
	if archive != nil {
		defer archive.Close()
	}

	source, err := buildSource(&cfg, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring issue source: %v\n", err)
		os.Exit(1)
	}
	enricher, err := buildEnricher(&cfg, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring enricher: %v\n", err)
		os.Exit(1)
	}
	generator, err := buildGenerator(&cfg, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring fix generator: %v\n", err)
		os.Exit(1)
	}
	executor, cleanup, err := buildExecutor(ctx, &cfg, collector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring executor: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	policyEngine, err := buildPolicy(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring policy: %v\n", err)
		os.Exit(1)
	}

	approvals := approval.NewQueue(&approval.QueueConfig{
		TTL:     cfg.Approvals.TTL,
		Audit:   auditLogger,
		Metrics: collector,
	})

	orch, err := orchestrator.New(&orchestrator.Config{
		Source:          source,
		Enricher:        enricher,
		Generator:       generator,
		Executor:        executor,
		Policy:          policyEngine,
		Approvals:       approvals,
		History:         archive,
		Audit:           auditLogger,
		CIEnv:           ciEnv,
		Metrics:         collector,
		Logger:          logger,
		PollInterval:    cfg.Agent.PollInterval,
		MaxPollFailures: cfg.Agent.MaxPollFailures,
		RateLimit:       cfg.Agent.RateLimit,
		RateBurst:       cfg.Agent.RateBurst,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating orchestrator: %v\n", err)
		os.Exit(1)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, collector, logger)
	}

	if *daemon {
		fmt.Printf("%s started in daemon mode (source: %s)\n", appName, source.Name())
		fmt.Println("Press Ctrl+C to stop.")
		if err := orch.Run(ctx); err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "Agent stopped: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Agent stopped.")
		return
	}

	if err := orch.RunOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}
	printSummary(orch)
}

func loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func loadIssues(path string) ([]*issue.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read issues file: %w", err)
	}
	var issues []*issue.Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("parse issues file: %w", err)
	}
	return issues, nil
}

func buildCollector(cfg *Config) metrics.Collector {
	if !cfg.Metrics.Enabled {
		return &metrics.NopCollector{}
	}
	return metrics.NewPrometheusCollector(&metrics.PrometheusConfig{})
}

func buildAudit(cfg *Config) *audit.Logger {
	if !cfg.Audit.Enabled {
		return nil
	}
	logger, err := audit.NewLogger(&audit.LoggerConfig{
		Actor:         appName,
		LogFile:       cfg.Audit.LogFile,
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
		Verbose:       cfg.Agent.Verbose,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: audit logging disabled: %v\n", err)
		return nil
	}
	return logger
}

func buildHistory(cfg *Config) *history.Archive {
	if !cfg.History.Enabled {
		return nil
	}
	archive, err := history.NewArchive(&history.Config{
		DatabasePath: cfg.History.DatabasePath,
		Compression:  compress.Algorithm(cfg.History.Compression),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: history archive disabled: %v\n", err)
		return nil
	}
	return archive
}

func buildSource(cfg *Config, collector metrics.Collector) (orchestrator.IssueSource, error) {
	switch cfg.Source.Kind {
	case "static":
		if cfg.Source.IssuesFile == "" {
			return nil, fmt.Errorf("static source needs an issues file (use -issues)")
		}
		issues, err := loadIssues(cfg.Source.IssuesFile)
		if err != nil {
			return nil, err
		}
		return orchestrator.NewStaticSource(issues), nil

	case "http", "":
		return orchestrator.NewHTTPSource(&orchestrator.HTTPSourceConfig{
			Endpoint: cfg.Source.Endpoint,
			APIKey:   cfg.Source.APIKey,
			Timeout:  cfg.Source.Timeout,
			Metrics:  collector,
		})

	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func buildEnricher(cfg *Config, collector metrics.Collector) (core.Enricher, error) {
	switch cfg.Enricher.Kind {
	case "mock":
		return &mocks.MockEnricher{}, nil

	case "github":
		return ghenrich.New(&ghenrich.Config{
			Token:   cfg.Enricher.Token,
			Timeout: cfg.Enricher.Timeout,
		})

	case "context-graph", "":
		return contextgraph.New(&contextgraph.Config{
			Endpoint: cfg.Enricher.Endpoint,
			APIKey:   cfg.Enricher.APIKey,
			CacheTTL: cfg.Enricher.CacheTTL,
			Timeout:  cfg.Enricher.Timeout,
			Metrics:  collector,
		})

	default:
		return nil, fmt.Errorf("unknown enricher kind %q", cfg.Enricher.Kind)
	}
}

func buildGenerator(cfg *Config, collector metrics.Collector) (core.FixGenerator, error) {
	newLLM := func() (core.FixGenerator, error) {
		return llm.New(&llm.Config{
			Endpoint: cfg.Generator.Endpoint,
			APIKey:   cfg.Generator.APIKey,
			Model:    cfg.Generator.Model,
			Timeout:  cfg.Generator.Timeout,
			Metrics:  collector,
		})
	}

	switch cfg.Generator.Kind {
	case "mock":
		confidence := cfg.Generator.Confidence
		if confidence == 0 {
			confidence = 95
		}
		return &mocks.MockFixGenerator{Confidence: confidence}, nil

	case "rules":
		return rules.New(nil)

	case "llm":
		return newLLM()

	case "chain", "":
		ruleGen, err := rules.New(nil)
		if err != nil {
			return nil, err
		}
		llmGen, err := newLLM()
		if err != nil {
			return nil, err
		}
		return fixgen.NewChain(ruleGen, llmGen)

	default:
		return nil, fmt.Errorf("unknown generator kind %q", cfg.Generator.Kind)
	}
}

func buildExecutor(ctx context.Context, cfg *Config, collector metrics.Collector) (core.Executor, func(), error) {
	switch cfg.Executor.Kind {
	case "mock":
		return &mocks.MockExecutor{}, nil, nil

	case "grpc":
		t := grpctransport.NewTransport(&grpctransport.Config{
			Address:            cfg.Executor.Address,
			APIKey:             cfg.Executor.APIKey,
			AgentID:            cfg.Executor.AgentID,
			UseTLS:             cfg.Executor.UseTLS,
			InsecureSkipVerify: cfg.Executor.InsecureSkipVerify,
		})
		if err := t.Connect(ctx); err != nil {
			return nil, nil, err
		}
		exec, err := grpcexec.New(&grpcexec.Config{Transport: t})
		if err != nil {
			t.Close()
			return nil, nil, err
		}
		return exec, func() { t.Close() }, nil

	case "http", "":
		exec, err := httpexec.New(&httpexec.Config{
			BaseURL: cfg.Executor.Endpoint,
			APIKey:  cfg.Executor.APIKey,
			Metrics: collector,
		})
		return exec, nil, err

	default:
		return nil, nil, fmt.Errorf("unknown executor kind %q", cfg.Executor.Kind)
	}
}

func buildPolicy(cfg *Config) (*policy.Engine, error) {
	if len(cfg.Policy.Rules) == 0 {
		return policy.NewEngine(policy.DefaultRules())
	}
	return policy.NewEngine(cfg.Policy.Rules)
}

func serveMetrics(addr string, collector metrics.Collector, logger core.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	logger.Info("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped: %v", err)
	}
}

func printSummary(orch *orchestrator.Orchestrator) {
	entries := orch.Store().List("")
	fmt.Printf("\nProcessed %d issue(s)\n", len(entries))

	counts := make(map[store.State]int)
	for _, e := range entries {
		counts[e.State]++
	}
	for _, state := range []store.State{
		store.StateRemediated, store.StateAwaitingApproval, store.StateFailed, store.StateSkipped,
	} {
		if counts[state] > 0 {
			fmt.Printf("  %-18s: %d\n", state, counts[state])
		}
	}

	pending := orch.Approvals().Pending()
	if len(pending) > 0 {
		fmt.Println("\nAwaiting approval:")
		for _, req := range pending {
			fmt.Printf("  %s  confidence %.2f%%  %s\n",
				req.IssueID, req.Payload.ProposedFix.Confidence, req.Payload.SuggestedAction)
		}
	}
}
