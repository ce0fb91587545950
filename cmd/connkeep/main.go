package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/connkeep/connkeep/cmd/connkeep/commands"
	"github.com/connkeep/connkeep/internal/config"
	"github.com/connkeep/connkeep/internal/logging"
	"github.com/connkeep/connkeep/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		settingsFile string
		noColor      bool
		debug        bool
	)

	app := &commands.App{}

	rootCmd := &cobra.Command{
		Use:   "connkeep",
		Short: "Connection credential vault - store and resolve secrets across backends",
		Long: `connkeep keeps connection credentials in whichever secret store is
available (OS keyring, Secret Service, an encrypted local file, or a cloud
vault) and resolves them through a priority fallback chain.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.Logger = logging.New(debug, noColor)
			app.SettingsPath = settingsFile
			metrics.Init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", config.DefaultPath(), "Settings file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewSecretCommand(app),
		commands.NewBackendsCommand(app),
		commands.NewResolveCommand(app),
	)

	return rootCmd.Execute()
}
