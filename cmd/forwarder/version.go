package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"mercator-hq/forwarder/pkg/cli"
	"mercator-hq/forwarder/pkg/telemetry/health"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

var versionFlags struct {
	output string
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print detailed version information including Git commit and build date.`,
	RunE:  printVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFlags.output, "output", "o", "text", "output format: text, json")
}

// versionInfo is served by the admin /version endpoint and printed by the
// version command.
func versionInfo() health.VersionInfo {
	return health.VersionInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
		GoVersion: runtime.Version(),
	}
}

func printVersion(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(versionFlags.output)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}

	info := versionInfo()
	out := cmd.OutOrStdout()

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, info)
	}

	fmt.Fprintf(out, "Forwarder %s\n", info.Version)
	fmt.Fprintf(out, "Git Commit: %s\n", info.Commit)
	fmt.Fprintf(out, "Build Date: %s\n", info.BuildTime)
	fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}
