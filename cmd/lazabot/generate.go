package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secrets for the environment",
	Long: `Generate cryptographic material: the master key that seals sessions
and the vault, and a session secret for cookie signing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "hex" && format != "base64" {
			return fmt.Errorf("--format must be hex or base64, got %q", format)
		}

		masterKey, _ := cmd.Flags().GetBool("master-key")
		sessionSecret, _ := cmd.Flags().GetBool("session-secret")
		all, _ := cmd.Flags().GetBool("all")
		if !masterKey && !sessionSecret && !all {
			all = true
		}

		encode := func(b []byte) string {
			if format == "base64" {
				return base64.StdEncoding.EncodeToString(b)
			}
			return hex.EncodeToString(b)
		}

		if masterKey || all {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Printf("%s=%s\n", crypto.MasterKeyEnv, encode(key))
		}

		if sessionSecret || all {
			secret, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Printf("LAZABOT_SESSION_SECRET=%s\n", encode(secret))
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().Bool("master-key", false, "Generate the sealing master key")
	generateCmd.Flags().Bool("session-secret", false, "Generate a session secret")
	generateCmd.Flags().Bool("all", false, "Generate everything (default)")
	generateCmd.Flags().String("format", "hex", "Output encoding: hex or base64")
}
