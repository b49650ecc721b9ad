package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
	"github.com/Lothbrok303/lazabot-ubu/pkg/vault"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the environment and stored credentials",
	Long: `Verify that everything a production run needs is in place: the
master key, account credentials, the solver key, and (optionally) that the
credential vault on disk opens cleanly.

Exits non-zero on problems only when --strict is passed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		verbose, _ := cmd.Flags().GetBool("verbose")

		problems := vault.ValidateEnv()

		if checkVault, _ := cmd.Flags().GetBool("credentials"); checkVault {
			vaultPath, _ := cmd.Flags().GetString("vault-path")
			problems = append(problems, validateVault(vaultPath, verbose)...)
		}

		if len(problems) == 0 {
			fmt.Println("All checks passed.")
			return nil
		}

		for _, p := range problems {
			fmt.Printf("PROBLEM %s: %s\n", p.Key, p.Message)
		}
		if strict {
			return fmt.Errorf("%d validation problems", len(problems))
		}
		return nil
	},
}

func validateVault(path string, verbose bool) []vault.Problem {
	envelope, err := crypto.FromEnv()
	if err != nil {
		// Already reported by ValidateEnv.
		return nil
	}

	v, err := vault.Load(path, envelope)
	if err != nil {
		return []vault.Problem{{Key: path, Message: err.Error()}}
	}

	if verbose {
		fmt.Printf("Vault %s: %d accounts, %d proxies\n", path, len(v.Accounts), len(v.Proxies))
		for _, id := range v.AccountIDs() {
			fmt.Printf("  account %s (%s)\n", id, v.Accounts[id].Username)
		}
	}

	var problems []vault.Problem
	if len(v.Accounts) == 0 {
		problems = append(problems, vault.Problem{Key: path, Message: "vault holds no accounts"})
	}
	for id, acct := range v.Accounts {
		if acct.Username == "" || acct.Password == "" {
			problems = append(problems, vault.Problem{
				Key:     id,
				Message: "account is missing a username or password",
			})
		}
	}
	return problems
}

func init() {
	validateCmd.Flags().Bool("credentials", false, "Also open and check the credential vault")
	validateCmd.Flags().String("vault-path", "data/vault.bin", "Path to the credential vault")
	validateCmd.Flags().Bool("strict", false, "Exit non-zero when problems are found")
}
