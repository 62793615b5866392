package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/qchi/internal/config"
	"github.com/fyrsmithlabs/qchi/internal/host"
	"github.com/fyrsmithlabs/qchi/internal/learning"
	"github.com/fyrsmithlabs/qchi/internal/lint"
)

// doctorTemplate is linted to prove the binary works end to end.
const doctorTemplate = "templates/OUTPUT_TEMPLATE.md"

var (
	doctorHost          string
	doctorCheckAllHosts bool
	doctorProjectID     string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local QCHI environment",
	Long: `Check that the selected host CLI, the qchi-lint binary and the Rust
toolchain used to build it are available.

Failures exit with status 1; warnings do not.

Examples:
  qchi doctor
  qchi doctor --host codex --check-all-hosts
  qchi doctor --project-id demo`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorHost, "host", config.DefaultHost, "host CLI to check")
	doctorCmd.Flags().BoolVar(&doctorCheckAllHosts, "check-all-hosts", false, "also report every other supported host")
	doctorCmd.Flags().StringVar(&doctorProjectID, "project-id", "", "also check the project's learning heuristics")
	rootCmd.AddCommand(doctorCmd)
}

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusWarn checkStatus = "WARN"
	statusFail checkStatus = "FAIL"
)

type check struct {
	Status checkStatus
	Label  string
	Detail string
}

// doctorReport accumulates check results.
type doctorReport struct {
	checks []check
}

func (r *doctorReport) add(status checkStatus, label, detail string) {
	r.checks = append(r.checks, check{Status: status, Label: label, Detail: detail})
}

func (r *doctorReport) count(status checkStatus) int {
	n := 0
	for _, c := range r.checks {
		if c.Status == status {
			n++
		}
	}
	return n
}

func (r *doctorReport) render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Status", "Check", "Detail"})
	for _, c := range r.checks {
		t.AppendRow(table.Row{"[" + string(c.Status) + "]", c.Label, c.Detail})
	}
	t.Render()
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		overrides["host.name"] = doctorHost
	}
	if cmd.Flags().Changed("project-id") {
		overrides["learning.project_id"] = doctorProjectID
	}
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	selected, err := host.ParseName(cfg.Host.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	repo, _ := os.Getwd()
	fmt.Fprintln(out, "QCHI doctor")
	fmt.Fprintf(out, "- repo: %s\n", repo)
	fmt.Fprintf(out, "- selected host: %s\n", selected)
	fmt.Fprintf(out, "- lint binary path: %s\n", cfg.Lint.Bin)
	fmt.Fprintln(out)

	var report doctorReport
	checkHosts(&report, selected, doctorCheckAllHosts)
	checkLint(cmd.Context(), &report, lint.NewRunner(cfg.Lint.Bin))
	for _, tool := range []string{"cargo", "rustc"} {
		if _, err := exec.LookPath(tool); err != nil {
			report.add(statusWarn, tool, "not found in PATH")
		} else {
			report.add(statusPass, tool, "found in PATH")
		}
	}
	if cfg.Learning.ProjectID != "" {
		checkHeuristics(&report, cfg.Learning.Dir, cfg.Learning.ProjectID)
	}

	report.render(out)
	failures, warnings := report.count(statusFail), report.count(statusWarn)
	fmt.Fprintf(out, "\nDoctor summary: failures=%d, warnings=%d\n", failures, warnings)
	if failures > 0 {
		return exitCodeError{code: 1}
	}
	return nil
}

func checkHosts(report *doctorReport, selected host.Name, all bool) {
	for _, name := range host.Supported() {
		if name != selected && !all {
			continue
		}
		label := "host:" + string(name)
		_, err := exec.LookPath(name.Binary())
		switch {
		case err == nil:
			report.add(statusPass, label, fmt.Sprintf("found '%s' in PATH", name.Binary()))
		case name == selected:
			report.add(statusFail, label, name.InstallHint())
		default:
			report.add(statusWarn, label, "not installed in PATH")
		}
	}
}

func checkLint(ctx context.Context, report *doctorReport, runner *lint.Runner) {
	if res, ok := runner.Available(); !ok {
		report.add(statusFail, "qchi-lint binary", res.Message)
		return
	}
	report.add(statusPass, "qchi-lint binary", "exists and executable")

	if ctx == nil {
		ctx = context.Background()
	}
	var stdout, stderr strings.Builder
	code, err := runner.Exec(ctx, &stdout, &stderr, "report", "--file", filepath.FromSlash(doctorTemplate))
	switch {
	case err != nil:
		report.add(statusFail, "qchi-lint report template", err.Error())
	case code == 0:
		detail := strings.TrimSpace(stdout.String())
		if detail == "" {
			detail = "report lint passed"
		}
		report.add(statusPass, "qchi-lint report template", detail)
	default:
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", code)
		}
		report.add(statusFail, "qchi-lint report template", detail)
	}
}

func checkHeuristics(report *doctorReport, dir, projectID string) {
	for _, track := range learning.Tracks() {
		label := fmt.Sprintf("heuristics:%s", track)
		paths, err := learning.Resolve(dir, projectID, track)
		if err != nil {
			report.add(statusFail, label, err.Error())
			return
		}
		path := filepath.Join(paths.ProjectRoot, string(track), learning.HeuristicsFile)
		h, err := learning.ReadHeuristics(path)
		if err != nil {
			report.add(statusWarn, label, err.Error())
			continue
		}
		report.add(statusPass, label, fmt.Sprintf("%d heuristics (version %d)", len(h.Heuristics), h.Version))
	}
}
