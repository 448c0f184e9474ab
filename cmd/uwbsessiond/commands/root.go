package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the path to the daemon's YAML configuration file, shared
// across serve and validate-config.
var configPath string

// rootCmd is the top-level cobra command for uwbsessiond. Unlike the
// teacher's gobfdctl (a client talking to a running daemon over RPC),
// this binary IS the daemon: there is no top-level binder/RPC facade in
// this module's scope, so the cobra layer sits directly over
// internal/daemon.App instead of over a generated RPC client.
var rootCmd = &cobra.Command{
	Use:   "uwbsessiond",
	Short: "UWB ranging session-manager controller daemon",
	Long:  "uwbsessiond manages UWB ranging sessions across FiRa, CCC, Aliro, and radar protocols.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to configuration file (YAML); defaults built in if omitted")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateConfigCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
