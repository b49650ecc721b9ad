package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/health"
	"github.com/Lothbrok303/lazabot-ubu/pkg/proxy"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Inspect and test the proxy pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("proxies")
		if path == "" {
			path = cfg.Proxies.File
		}
		if path == "" {
			return fmt.Errorf("no proxies file: pass --proxies or set proxies.file in the config")
		}

		if line, _ := cmd.Flags().GetString("add"); line != "" {
			return addProxy(path, line)
		}

		pool, err := proxy.FromFile(path)
		if err != nil {
			return err
		}

		if test, _ := cmd.Flags().GetBool("test"); test {
			return testProxies(cmd, cfg.Proxies.TestURL, pool)
		}

		// Default action is --list.
		for _, ep := range pool.All() {
			auth := ""
			if ep.Username != "" {
				auth = " (authenticated)"
			}
			fmt.Printf("%s%s\n", ep.ID(), auth)
		}
		fmt.Printf("%d proxies\n", pool.Size())
		return nil
	},
}

func addProxy(path, line string) error {
	if _, err := proxy.ParseLine(line); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open proxies file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to append proxy: %w", err)
	}
	fmt.Printf("Added %s\n", line)
	return nil
}

func testProxies(cmd *cobra.Command, testURL string, pool *proxy.Pool) error {
	checker, err := health.NewChecker(pool)
	if err != nil {
		return err
	}
	if testURL != "" {
		checker.WithTestURL(testURL)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	fmt.Printf("Testing %d proxies...\n", pool.Size())
	report := checker.Scan(ctx, health.ScanAll)

	for _, ep := range report.HealthyProxies {
		fmt.Printf("  OK   %s\n", ep.ID())
	}
	for _, ep := range report.UnhealthyProxies {
		fmt.Printf("  FAIL %s\n", ep.ID())
	}
	fmt.Printf("%d/%d healthy in %s\n", report.Healthy, report.Total, report.Duration.Round(time.Millisecond))
	return nil
}

func init() {
	proxyCmd.Flags().Bool("test", false, "Probe every proxy and report health")
	proxyCmd.Flags().Bool("list", false, "List pool members (default)")
	proxyCmd.Flags().String("add", "", "Append a proxy line (host:port or host:port:user:pass)")
	proxyCmd.Flags().String("proxies", "", "Path to the proxies file")
}
