package main

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// cliVersion is the release reported by "qchi version".
const cliVersion = "0.4.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		repo, _ := os.Getwd()
		cmd.Printf("qchi-cli %s\n", cliVersion)
		cmd.Printf("repo: %s\n", repo)
		cmd.Printf("git: %s\n", gitRevision(cmd.Context(), repo))
		cmd.Printf("build: %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// gitRevision returns the short HEAD revision of dir, or "unknown".
func gitRevision(ctx context.Context, dir string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--short", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	rev := strings.TrimSpace(string(out))
	if rev == "" {
		return "unknown"
	}
	return rev
}
