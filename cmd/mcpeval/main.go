// Command mcpeval drives a manifest of MCP tool-use evals against a solver
// and judge model, writing one scored result row per eval to a TSV sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/mcpeval/harness/internal/eval"
	"github.com/mcpeval/harness/internal/profile"
	"github.com/mcpeval/harness/internal/runner"
	"github.com/mcpeval/harness/pkg/config"
)

func main() {
	config.LoadEnv()

	manifestPath := flag.String("manifest", "", "path to the eval manifest (JSON)")
	profilesPath := flag.String("profiles", "", "path to the provider profiles file (JSON or YAML)")
	outPath := flag.String("out", "results.tsv", "path to write the TSV result sink")
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║              mcpeval                  ║")
	fmt.Println("║   MCP tool-use agent eval harness     ║")
	fmt.Println("╚══════════════════════════════════════╝")

	if *manifestPath == "" {
		log.Fatalf("❌ -manifest is required")
	}
	if *profilesPath == "" {
		log.Fatalf("❌ -profiles is required")
	}

	manifest, err := eval.LoadManifest(*manifestPath)
	if err != nil {
		log.Fatalf("❌ Failed to load manifest: %v", err)
	}
	fmt.Printf("📋 Manifest: %s (%d evals)\n", *manifestPath, len(manifest.Evals))

	profiles, err := profile.LoadFile(*profilesPath)
	if err != nil {
		log.Fatalf("❌ Failed to load provider profiles: %v", err)
	}
	fmt.Printf("🤖 Profiles: %s (active: %s)\n", *profilesPath, manifest.LLMConfig.ActiveProfile)

	r, err := runner.New(manifest, profiles, *outPath)
	if err != nil {
		log.Fatalf("❌ Failed to initialize runner: %v", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("⚠️  Error while closing runner: %v", err)
		}
	}()
	fmt.Printf("📂 Results: %s\n", *outPath)

	summary, err := r.Run(context.Background())
	if err != nil {
		log.Fatalf("❌ Run failed: %v", err)
	}

	fmt.Printf("✅ %d/%d evals completed, %d failed, mean score %.3f\n",
		summary.Completed, summary.Total, summary.Failed, summary.MeanScore)

	// Per-eval failures are reflected in the summary but never change the
	// exit code: only a configuration error prevents the run from
	// completing at all.
}
