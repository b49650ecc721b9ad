package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/config"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lazabot",
	Short: "Lazabot - flash-sale automation for the impatient shopper",
	Long: `Lazabot watches product pages, keeps authenticated sessions warm,
and races through checkout the instant stock appears.

Sessions and credentials are sealed at rest; traffic is paced and
fingerprinted to look like a browser.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := log.InfoLevel
		if verbose {
			level = log.DebugLevel
		}
		log.Init(log.Config{Level: level})
		metrics.SetVersion(Version)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Lazabot version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "lazabot.toml", "Path to the main configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(credentialsCmd)
}

// loadConfig reads the config named by --config, falling back to defaults
// when the file does not exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithComponent("cli").Debug().Str("path", path).Msg("config file absent, using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}
