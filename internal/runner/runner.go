// Package runner implements the top-level driver of §4.9: iterate the
// evals named by a manifest, drive each through a fresh Workflow, score the
// outcome, and emit one Result row per eval to a TSV sink.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mcpeval/harness/internal/agent"
	"github.com/mcpeval/harness/internal/eval"
	"github.com/mcpeval/harness/internal/host"
	"github.com/mcpeval/harness/internal/mcp"
	"github.com/mcpeval/harness/internal/model"
	"github.com/mcpeval/harness/internal/model/openai"
	"github.com/mcpeval/harness/internal/profile"
	"github.com/mcpeval/harness/internal/scoring"
	"github.com/mcpeval/harness/internal/telemetry"
	"github.com/mcpeval/harness/internal/transcript"
	"github.com/mcpeval/harness/internal/util"
)

// Result is one eval's outcome row, per §3.1.
type Result struct {
	EvalID         string
	Question       string
	Score          float64
	Reason         string
	Answer         string
	ToolCount      int
	MCPValid       bool
	DurationMS     int64
	PerScorer      []ScorerBreakdown
	TranscriptJSON string
	ToolCallsJSON  string
}

// ScorerBreakdown is one entry of a Result's per-scorer field.
type ScorerBreakdown struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

// RunSummary aggregates a run's outcome across every eval.
type RunSummary struct {
	Total      int
	Completed  int
	Failed     int
	MeanScore  float64
	StartedAt  time.Time
	FinishedAt time.Time
}

const (
	answerPersonaSystemPrompt = "You are a careful assistant. Use the available tools when they help answer the question, then give a direct final answer."
	judgeSystemPrompt         = "You are an impartial evaluator. Follow the requested output format exactly."
)

// Runner owns one shared, read-only-after-construction ToolRegistry across
// every eval in the manifest, for connection efficiency (§4.9). A fresh
// ToolAgent, Introspector, Host, and Workflow are constructed per eval;
// only the underlying registry connections are reused.
type Runner struct {
	Manifest    *eval.Manifest
	Profiles    *profile.File
	Registry    mcp.ToolRegistry
	MCPLog      *telemetry.MCPLog
	Sink        *TSVSink
	HostSteps   int
	WorkflowSteps int
}

// New builds a Runner: connects every mcp_servers entry named in the
// manifest into one shared registry, and opens the TSV result sink and (if
// requested) the telemetry log.
func New(m *eval.Manifest, profiles *profile.File, outPath string) (*Runner, error) {
	registry := mcp.NewRegistry()
	ctx := context.Background()
	for name, cfg := range m.MCPServers {
		// A server that fails to connect or hand back a tool spec is a
		// transport error (§7), not a configuration error: skip it and let
		// evals that never reference it proceed unaffected. Evals that do
		// reference it will fail tool dispatch for that server's tools
		// individually, same as any other unavailable tool.
		if err := registry.Register(ctx, cfg.toServerConfig(name)); err != nil {
			log.Printf("[Runner] mcp server %q unavailable, continuing without it: %v", name, err)
		}
	}

	sink, err := NewTSVSink(outPath)
	if err != nil {
		return nil, fmt.Errorf("runner: opening result sink: %w", err)
	}

	var mcpLog *telemetry.MCPLog
	if m.Logging != nil && m.Logging.MCPCalls {
		mcpLog, err = telemetry.OpenMCPLog(outPath + "_mcp_log.csv")
		if err != nil {
			return nil, fmt.Errorf("runner: opening telemetry log: %w", err)
		}
	}

	return &Runner{
		Manifest:      m,
		Profiles:      profiles,
		Registry:      registry,
		MCPLog:        mcpLog,
		Sink:          sink,
		HostSteps:     0,
		WorkflowSteps: 0,
	}, nil
}

// Close releases the shared registry's connections, the telemetry log, and
// the result sink. Unlike per-eval agent cleanup, this runs exactly once,
// after the last eval completes, since the registry is shared.
func (r *Runner) Close() error {
	var firstErr error
	if err := r.Registry.CloseAll(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("runner: closing registry: %w", err)
	}
	if r.MCPLog != nil {
		if err := r.MCPLog.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("runner: closing telemetry log: %w", err)
		}
	}
	if err := r.Sink.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("runner: closing result sink: %w", err)
	}
	return firstErr
}

// Run drives every eval in the manifest to completion and returns the
// aggregated summary. Per-eval failures (transport, tool, model, or scorer
// adapter errors) are recorded as zero- or reduced-score Results, not
// propagated. A configuration error — an unknown scorer type, a role with
// no resolvable provider, and the like (§7) — aborts the whole run and is
// returned here, since it indicates the manifest itself cannot produce a
// meaningful result for any eval, not just the one that surfaced it.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{Total: len(r.Manifest.Evals), StartedAt: time.Now()}

	for _, e := range r.Manifest.Evals {
		start := time.Now()
		result, err := r.runOne(ctx, e)
		if err != nil {
			return summary, fmt.Errorf("eval %s: %w", e.ID, err)
		}
		result.DurationMS = time.Since(start).Milliseconds()

		if err := r.Sink.Write(result); err != nil {
			log.Printf("[Runner] eval %s: failed to write result: %v", e.ID, err)
		}

		summary.Completed++
		if result.Score == 0 && result.Reason != "" {
			summary.Failed++
		}
		summary.MeanScore += result.Score
		log.Printf("[Runner] eval %s: score=%.3f duration=%dms", e.ID, result.Score, result.DurationMS)
	}

	if summary.Completed > 0 {
		summary.MeanScore /= float64(summary.Completed)
	}
	summary.FinishedAt = time.Now()
	log.Printf("[Runner] run complete: %d/%d evals, mean score %.3f", summary.Completed, summary.Total, summary.MeanScore)
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, e eval.Eval) (Result, error) {
	solverClient, err := r.buildModel("solver")
	if err != nil {
		return Result{}, fmt.Errorf("configuration error: %w", err)
	}
	judgeClient, err := r.buildModel("judge")
	if err != nil {
		return Result{}, fmt.Errorf("configuration error: %w", err)
	}

	maxSteps := r.HostSteps
	if e.Execution.Solver != nil && e.Execution.Solver.MaxReasoningSteps > 0 {
		maxSteps = e.Execution.Solver.MaxReasoningSteps
	}
	workflowSteps := r.WorkflowSteps
	if e.Execution.Asker != nil && e.Execution.Asker.MaxTurns > 0 {
		workflowSteps = e.Execution.Asker.MaxTurns
	}

	solverAgent := agent.New(fmt.Sprintf("solver:%s", e.ID), solverClient, answerPersonaSystemPrompt, r.Registry)
	judgeAgent := agent.New(fmt.Sprintf("judge:%s", e.ID), judgeClient, judgeSystemPrompt, nil)

	if err := solverAgent.Initialize(ctx); err != nil {
		// Tool client connect failure is a transport error, not a
		// configuration one (§7): not fatal to the run, only to this case.
		return Result{
			EvalID:   e.ID,
			Question: e.Question,
			Reason:   fmt.Sprintf("tool registry initialization failed: %v", err),
		}, nil
	}

	h := host.New(solverAgent, maxSteps)
	introspector := host.NewIntrospector(judgeAgent, nil)
	wf := host.NewWorkflow(h, introspector, workflowSteps)

	answer := wf.Ask(ctx, e.Question)

	invocations := solverAgent.Transcript.Invocations()
	scoringCtx := scoring.ScoringContext{
		Transcript: solverAgent.Transcript,
		Answer:     answer,
		ToolCalls:  invocations,
		Expected:   e.Expectations["value"],
	}

	judge := scoring.NewAgentJudge(judgeAgent)
	scoreValue, reason, breakdown, err := r.score(judge, e, scoringCtx)
	if err != nil {
		return Result{}, fmt.Errorf("configuration error: %w", err)
	}

	mcpValid, usageReason := validateMcpUsage(e, invocations)
	if !mcpValid {
		scoreValue /= 2
		reason = usageReason + "; " + reason
	}

	r.recordTelemetry(invocations)

	transcriptJSON, _ := json.Marshal(solverAgent.Transcript.Messages())
	toolCallsJSON, _ := json.Marshal(invocations)

	log.Printf("[Runner] eval %s answer preview: %s", e.ID, util.TruncateRunes(answer, 160))

	return Result{
		EvalID:         e.ID,
		Question:       e.Question,
		Score:          scoreValue,
		Reason:         reason,
		Answer:         answer,
		ToolCount:      len(invocations),
		MCPValid:       mcpValid,
		PerScorer:      breakdown,
		TranscriptJSON: string(transcriptJSON),
		ToolCallsJSON:  string(toolCallsJSON),
	}, nil
}

func (r *Runner) buildModel(role string) (model.Client, error) {
	resolved, err := profile.Resolve(r.Profiles, r.Manifest.LLMConfig, role)
	if err != nil {
		return nil, err
	}
	cfg := openai.Config{
		APIKey:  resolved.APIKey,
		BaseURL: resolved.BaseURL,
		Model:   resolved.Model,
	}
	return openai.New(cfg, role), nil
}

// score builds every scorer named by e.Scoring and returns the weighted
// aggregate. Build failing — an unknown scorer type or a scorer missing a
// required parameter — is a configuration bug (§4.8), not a per-eval
// scoring failure, so it is returned as an error rather than skipped.
func (r *Runner) score(judge scoring.Judge, e eval.Eval, ctx scoring.ScoringContext) (float64, string, []ScorerBreakdown, error) {
	weighted := make([]scoring.WeightedScorer, 0, len(e.Scoring))
	for _, sc := range e.Scoring {
		cfg := scoring.Config{Type: sc.Type, Weight: sc.Weight, Mode: sc.Mode, Parameters: sc.Parameters, CallOrder: sc.CallOrder()}
		ws, err := scoring.Build(judge, e.Question, cfg)
		if err != nil {
			return 0, "", nil, fmt.Errorf("eval %s: %w", e.ID, err)
		}
		weighted = append(weighted, ws)
	}

	fn := scoring.NewScoreFunction(weighted)
	value, _, breakdown := fn.EvaluateWithBreakdown(ctx)

	out := make([]ScorerBreakdown, len(breakdown))
	for i, b := range breakdown {
		out[i] = ScorerBreakdown{Name: b.Name, Value: b.Value, Reason: b.Reason}
	}
	reason := "no scorers configured"
	if len(out) > 0 {
		reason = summarizeBreakdown(out)
	}
	return value, reason, out, nil
}

func summarizeBreakdown(breakdown []ScorerBreakdown) string {
	var b []byte
	for i, s := range breakdown {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, []byte(fmt.Sprintf("%s: %.3f — %s", s.Name, s.Value, s.Reason))...)
	}
	return string(b)
}

func (r *Runner) recordTelemetry(invocations []transcript.ToolInvocationRecord) {
	if r.MCPLog == nil {
		return
	}
	for _, inv := range invocations {
		payload := mcp.MarshalResult(mcp.NormalizedResult{Success: true, Result: inv.Result})
		if err := r.MCPLog.Record(inv.ServerName, inv.ToolName, inv.Arguments, payload); err != nil {
			log.Printf("[Telemetry] failed to record call %s/%s: %v", inv.ServerName, inv.ToolName, err)
		}
	}
}
