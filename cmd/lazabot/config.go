package main

import (
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or modify the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path, _ = cmd.Flags().GetString("config")
		}

		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", path)
			return nil
		}

		if assignment, _ := cmd.Flags().GetString("set"); assignment != "" {
			key, value, found := strings.Cut(assignment, "=")
			if !found {
				return fmt.Errorf("--set expects key=value, got %q", assignment)
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Printf("Set %s = %s\n", key, value)
			return nil
		}

		// Default action is --show.
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		rendered, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(rendered))
		return nil
	},
}

func init() {
	configCmd.Flags().StringP("file", "f", "", "Configuration file to operate on (defaults to --config)")
	configCmd.Flags().Bool("show", false, "Print the effective configuration (default)")
	configCmd.Flags().Bool("reset", false, "Overwrite the file with defaults")
	configCmd.Flags().String("set", "", "Assign a key, e.g. bot.max_concurrent=5")
}
