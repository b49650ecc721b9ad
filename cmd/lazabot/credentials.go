package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
	"github.com/Lothbrok303/lazabot-ubu/pkg/vault"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the sealed credential vault",
}

func vaultPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("vault-path")
	return path
}

// openVault loads the vault, or starts an empty one when none exists yet.
func openVault(path string) (*vault.Vault, *crypto.Envelope, error) {
	envelope, err := crypto.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	v, err := vault.Load(path, envelope)
	if err != nil {
		if err != vault.ErrNotFound {
			return nil, nil, err
		}
		v = vault.New()
	}
	return v, envelope, nil
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		var v *vault.Vault
		if fromEnv, _ := cmd.Flags().GetBool("env"); fromEnv {
			v = vault.LoadFromEnv()
		} else {
			loaded, _, err := openVault(vaultPath(cmd))
			if err != nil {
				return err
			}
			v = loaded
		}

		if len(v.Accounts) == 0 {
			fmt.Println("No accounts.")
		}
		for _, id := range v.AccountIDs() {
			acct := v.Accounts[id]
			fmt.Printf("%s: user=%s password=%s", id, acct.Username, mask(acct.Password))
			if acct.Email != "" {
				fmt.Printf(" email=%s", acct.Email)
			}
			fmt.Println()
		}
		if v.Captcha != nil {
			fmt.Printf("captcha: api_key=%s\n", mask(v.Captcha.APIKey))
		} else {
			fmt.Println("captcha: not configured")
		}
		return nil
	},
}

var credentialsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace an account in the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		email, _ := cmd.Flags().GetString("email")
		if username == "" || password == "" {
			return fmt.Errorf("--username and --password are required")
		}
		if id == "" {
			id = username
		}

		path := vaultPath(cmd)
		v, envelope, err := openVault(path)
		if err != nil {
			return err
		}
		v.Accounts[id] = vault.Account{Username: username, Password: password, Email: email}
		if err := v.Save(path, envelope); err != nil {
			return err
		}
		fmt.Printf("Stored account %s\n", id)
		return nil
	},
}

var credentialsRemoveCmd = &cobra.Command{
	Use:   "remove ACCOUNT_ID",
	Short: "Remove an account from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := vaultPath(cmd)
		v, envelope, err := openVault(path)
		if err != nil {
			return err
		}
		if _, ok := v.Accounts[args[0]]; !ok {
			return fmt.Errorf("no account %q in the vault", args[0])
		}
		delete(v.Accounts, args[0])
		if err := v.Save(path, envelope); err != nil {
			return err
		}
		fmt.Printf("Removed account %s\n", args[0])
		return nil
	},
}

var credentialsStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Seal environment credentials into the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		envelope, err := crypto.FromEnv()
		if err != nil {
			return err
		}

		v := vault.LoadFromEnv()
		if len(v.Accounts) == 0 {
			return fmt.Errorf("no account credentials in the environment: set %s", vault.UsernameEnv)
		}
		path := vaultPath(cmd)
		if err := v.Save(path, envelope); err != nil {
			return err
		}
		fmt.Printf("Stored %d accounts in %s\n", len(v.Accounts), path)
		return nil
	},
}

// mask keeps the first and last character of a secret so two secrets can
// still be told apart in output.
func mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:1] + strings.Repeat("*", len(secret)-2) + secret[len(secret)-1:]
}

func init() {
	credentialsCmd.PersistentFlags().String("vault-path", "data/vault.bin", "Path to the credential vault")

	credentialsListCmd.Flags().Bool("env", false, "Show environment credentials instead of the vault")
	credentialsAddCmd.Flags().String("id", "", "Account id (defaults to the username)")
	credentialsAddCmd.Flags().String("username", "", "Account username")
	credentialsAddCmd.Flags().String("password", "", "Account password")
	credentialsAddCmd.Flags().String("email", "", "Account email")

	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsAddCmd)
	credentialsCmd.AddCommand(credentialsRemoveCmd)
	credentialsCmd.AddCommand(credentialsStoreCmd)
}
