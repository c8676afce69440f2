/*
Package cli provides command-line helpers for the forwarder command.

Output Formatting:

Commands that print results accept --output text|json:

	format, err := cli.ParseOutputFormat(flag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	<-ctx.Done()
	srv.Shutdown(context.Background())

SIGHUP is delivered separately through ReloadSignals.

Exit Codes:

ExitCode maps command errors to the process exit status; configuration
errors exit with ExitConfig.
*/
package cli
