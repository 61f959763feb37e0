// Package commands implements the mediactl maintenance CLI
package commands

import (
	"bitwise74/media-api/app"
	"bitwise74/media-api/config"
	"bitwise74/media-api/internal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logLevel string

	// deps is built once per invocation by the root pre-run hook
	deps *internal.Deps
)

var rootCmd = &cobra.Command{
	Use:   "mediactl",
	Short: "Maintenance tool for the media service",
	Long: `mediactl runs maintenance jobs against the media service database and
storage using the same config.toml and environment as the server.

Use "mediactl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Load(); err != nil {
			return err
		}

		level := viper.GetString("app.log_level")
		if logLevel != "" {
			level = logLevel
		}
		app.MakeLogger(level)

		d, err := internal.NewDeps(cmd.Context())
		if err != nil {
			return err
		}

		deps = d
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if deps != nil {
			deps.Close()
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides app.log_level")

	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(unprotectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(userCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
