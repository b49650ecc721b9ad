package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/config"
	"github.com/Lothbrok303/lazabot-ubu/pkg/health"
	"github.com/Lothbrok303/lazabot-ubu/pkg/httpclient"
	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
	"github.com/Lothbrok303/lazabot-ubu/pkg/metrics"
	"github.com/Lothbrok303/lazabot-ubu/pkg/monitor"
	"github.com/Lothbrok303/lazabot-ubu/pkg/proxy"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch products for availability transitions",
	Long: `Poll every product in the products file and report availability
transitions as they happen. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		productsPath, _ := cmd.Flags().GetString("products")
		intervalSec, _ := cmd.Flags().GetInt("interval")

		pf, err := config.LoadProducts(productsPath)
		if err != nil {
			return err
		}

		client, err := httpclient.New(cfg.Bot.UserAgent)
		if err != nil {
			return err
		}

		var pool *proxy.Pool
		if cfg.Proxies.File != "" {
			pool, err = proxy.FromFile(cfg.Proxies.File)
			if err != nil {
				return err
			}

			checker, err := health.NewChecker(pool)
			if err != nil {
				return err
			}
			if cfg.Proxies.TestURL != "" {
				checker.WithTestURL(cfg.Proxies.TestURL)
			}
			watcher := health.NewWatcher(checker, time.Duration(cfg.Proxies.HealthCheckIntervalMS)*time.Millisecond)
			watcher.Start()
			defer watcher.Stop()
		}

		metricsServer := metrics.NewServer(cfg.Bot.MetricsAddr)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.WithComponent("metrics").Error().Err(err).Msg("metrics server failed")
			}
		}()
		collector := metrics.NewCollector(15 * time.Second)
		collector.Start()
		defer collector.Stop()

		engine := monitor.NewEngine()
		engine.Start()
		defer engine.Stop()

		for _, entry := range pf.Products {
			product := entry.ToMonitorProduct(cfg.Monitoring)
			if intervalSec > 0 {
				product.PollInterval = time.Duration(intervalSec) * time.Second
			}
			events := engine.Add(monitor.NewMonitor(product, client, pool))
			go printEvents(events)
		}

		metrics.UpdateComponent("monitor", true, "")
		fmt.Printf("Monitoring %d products. Press Ctrl+C to stop.\n", len(pf.Products))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		return nil
	},
}

func printEvents(events <-chan monitor.Event) {
	for ev := range events {
		state := "OUT OF STOCK"
		if ev.Available {
			state = "AVAILABLE"
		}
		detail := ""
		if ev.Price != nil {
			detail = fmt.Sprintf(" price=%.2f", *ev.Price)
		}
		if ev.Stock != nil {
			detail += fmt.Sprintf(" stock=%d", *ev.Stock)
		}
		fmt.Printf("[%s] %s: %s%s\n", ev.Timestamp.Format(time.RFC3339), ev.ProductID, state, detail)
	}
}

func init() {
	monitorCmd.Flags().StringP("products", "p", "products.yaml", "Path to the products YAML file")
	monitorCmd.Flags().IntP("interval", "i", 0, "Override poll interval in seconds for all products")
}
