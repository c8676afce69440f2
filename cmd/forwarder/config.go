package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/forwarder/pkg/cli"
	"mercator-hq/forwarder/pkg/config"
)

// redacted replaces secrets in printed configuration.
const redacted = "[REDACTED]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
	Long: `Inspect the configuration the proxy would run with.

The file is resolved from --config, FORWARDER_CONFIG or config.yaml in the
working directory. Defaults fill every missing value and FORWARDER_*
environment variables override the file.

Subcommands:
  validate - Check the configuration for errors
  show     - Print the effective configuration as YAML`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  validateConfig,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML, after defaults and
environment overrides. The proxy-auth password is redacted.`,
	RunE: showConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

func loadEffectiveConfig() (*config.Config, string, error) {
	path := config.ResolvePath(cfgFile)
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	return cfg, path, err
}

func validateConfig(cmd *cobra.Command, args []string) error {
	_, path, err := loadEffectiveConfig()
	if path == "" {
		path = "(defaults)"
	}
	out := cmd.OutOrStdout()

	if err != nil {
		fmt.Fprintf(out, "✗ %s is invalid\n", path)

		var verr config.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				fmt.Fprintf(out, "  - %s\n", fe.Error())
			}
			return cli.NewConfigError("", fmt.Sprintf("%d validation errors", len(verr.Errors)))
		}
		return cli.NewConfigError("", err.Error())
	}

	fmt.Fprintf(out, "✓ %s is valid\n", path)
	return nil
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadEffectiveConfig()
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	shown := *cfg
	if shown.Auth.Password != "" {
		shown.Auth.Password = redacted
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(&shown); err != nil {
		return cli.NewCommandError("config show", err)
	}
	return enc.Close()
}
