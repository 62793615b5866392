// Package orchestrator drives a research task through the role pipeline and
// the quality gate, retrying the derivation with corrective feedback.
//
// # Overview
//
// A run moves through named states:
//
//	planning → deriving → gating → accepted | retrying | exhausted | policy_failure
//
// Planning invokes the planner and, for paper_reproduction, the source
// miner once. Each attempt invokes the derivation role, lints the artifact,
// collects the symbolic, numeric, referee and integrator verdicts and
// evaluates the quality gate. A failed gate synthesizes feedback from the
// issues and the verifiers' required fixes and blockers, pauses, and starts
// the next attempt until the retry budget is spent.
//
// # Failure classes
//
// A role that fails to execute or returns an invalid message ends the run
// immediately as a policy failure (exit code 2). Exhausting the retry
// budget is an execution failure (exit code 1). Both are reported as an
// *AbortError.
//
// # Artifacts
//
// Every prompt context, raw output, validated message, lint verdict and
// gate result is written under the run directory through the artifact
// package, and exactly one learning record is appended per run.
//
// # Usage
//
//	engine := orchestrator.NewEngine(cfg, h, lint.NewRunner(cfg.Lint.Bin),
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithOutput(os.Stdout),
//	)
//	run, err := engine.Run(ctx)
//	os.Exit(orchestrator.ExitCode(err))
package orchestrator
