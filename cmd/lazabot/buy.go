package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/captcha"
	"github.com/Lothbrok303/lazabot-ubu/pkg/checkout"
	"github.com/Lothbrok303/lazabot-ubu/pkg/config"
	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/session"
	"github.com/Lothbrok303/lazabot-ubu/pkg/stealth"
	"github.com/Lothbrok303/lazabot-ubu/pkg/storage"
	"github.com/Lothbrok303/lazabot-ubu/pkg/vault"
)

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Buy a product right now",
	Long: `Run the checkout flow for a product immediately, using the first
account with stored credentials. With --dry-run, print the plan and stop
before touching the retailer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		productRef, _ := cmd.Flags().GetString("product")
		quantity, _ := cmd.Flags().GetInt("quantity")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if productRef == "" {
			return fmt.Errorf("--product is required")
		}
		if quantity < 1 {
			return fmt.Errorf("--quantity must be at least 1, got %d", quantity)
		}

		product := checkout.Product{ID: productRef, URL: productRef, Quantity: quantity}

		creds := vault.LoadFromEnv()
		if len(creds.Accounts) == 0 {
			return fmt.Errorf("no account credentials in environment; set %s and %s", vault.UsernameEnv, vault.PasswordEnv)
		}
		accountID := creds.AccountIDs()[0]
		account := checkout.Account{
			ID:       accountID,
			Username: creds.Accounts[accountID].Username,
		}
		for _, acct := range cfg.Accounts {
			if acct.ID == accountID || acct.Username == account.Username {
				account.PaymentMethod = acct.PaymentMethod
				account.ShippingAddress = acct.ShippingAddress
			}
		}

		if dryRun {
			fmt.Println("Dry run - no requests will be sent.")
			fmt.Printf("  Product:  %s\n", productRef)
			fmt.Printf("  Quantity: %d\n", quantity)
			fmt.Printf("  Account:  %s\n", account.Username)
			fmt.Printf("  Base URL: %s\n", cfg.Bot.BaseURL)
			return nil
		}

		if err := crypto.Init(); err != nil {
			return err
		}
		envelope, err := crypto.Default()
		if err != nil {
			return err
		}

		manager, err := session.NewManager(
			cfg.Bot.SessionsDir,
			envelope,
			cfg.Bot.BaseURL+"/login",
			cfg.Bot.BaseURL+"/account",
		)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := obtainSession(ctx, manager, creds.Accounts[accountID])
		if err != nil {
			return err
		}

		var solver captcha.Solver
		if remote, err := captcha.RemoteFromEnv(); err == nil {
			solver = remote
		} else {
			fmt.Println("Warning: no solver API key set, challenges cannot be solved.")
			solver = captcha.NewMock("")
		}

		client, err := httpclient.New(cfg.Bot.UserAgent)
		if err != nil {
			return err
		}

		var doer checkout.Doer = client
		if cfg.Stealth.Enabled {
			doer = stealthClient(client, cfg.Stealth)
		}

		engine := checkout.NewEngine(doer, solver, checkout.DefaultConfig(cfg.Bot.BaseURL))
		if cfg.Bot.DatabasePath != "" {
			store, err := storage.Open(cfg.Bot.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()
			engine.WithStore(store)
		}

		result := engine.InstantCheckout(ctx, product, account, sess)
		if !result.Success {
			return fmt.Errorf("checkout failed after %d ms: %s", result.ElapsedMS, result.Error)
		}

		fmt.Printf("Order placed: %s (%d ms)\n", result.OrderID, result.ElapsedMS)
		return nil
	},
}

// stealthClient wraps the client with a browser fingerprint and request
// pacing from the stealth config.
func stealthClient(client *httpclient.Client, cfg config.StealthConfig) *stealth.Client {
	fp := stealth.RandomFingerprint()
	if cfg.BrowserFamily != "" {
		fp = stealth.RandomFingerprintFor(cfg.BrowserFamily)
	}

	behavior := stealth.NewBehavior(stealth.BehaviorConfig{
		PreRequestMin:  time.Duration(cfg.PreRequestMinMS) * time.Millisecond,
		PreRequestMax:  time.Duration(cfg.PreRequestMaxMS) * time.Millisecond,
		PostRequestMin: time.Duration(cfg.PostRequestMinMS) * time.Millisecond,
		PostRequestMax: time.Duration(cfg.PostRequestMaxMS) * time.Millisecond,
	})

	return stealth.NewClient(client).WithFingerprint(fp).WithBehavior(behavior)
}

// obtainSession restores the freshest valid persisted session, or logs in
// anew and persists the result.
func obtainSession(ctx context.Context, manager *session.Manager, account vault.Account) (*session.Session, error) {
	ids, err := manager.List()
	if err == nil {
		for i := len(ids) - 1; i >= 0; i-- {
			sess, err := manager.Restore(ids[i])
			if err != nil || sess.Credentials.Username != account.Username {
				continue
			}
			if manager.Validate(ctx, sess) {
				_ = manager.Persist(sess)
				return sess, nil
			}
		}
	}

	sess, err := manager.Login(ctx, session.Credentials{
		Username: account.Username,
		Password: account.Password,
	})
	if err != nil {
		return nil, err
	}
	if err := manager.Persist(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func init() {
	buyCmd.Flags().StringP("product", "p", "", "Product id or URL to buy")
	buyCmd.Flags().IntP("quantity", "q", 1, "Quantity to purchase")
	buyCmd.Flags().Bool("dry-run", false, "Print the plan without sending requests")
}
