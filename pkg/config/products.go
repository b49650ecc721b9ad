package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lothbrok303/lazabot-ubu/pkg/monitor"
)

// ProductEntry is one row of the products YAML file.
type ProductEntry struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	URL               string   `yaml:"url"`
	TargetPrice       *float64 `yaml:"target_price,omitempty"`
	MinStock          *int     `yaml:"min_stock,omitempty"`
	MonitorIntervalMS int      `yaml:"monitor_interval_ms"`
}

// ProductsFile is the full products document.
type ProductsFile struct {
	Products     []ProductEntry `yaml:"products"`
	TestProducts []ProductEntry `yaml:"test_products,omitempty"`
}

// LoadProducts reads and validates a products YAML file.
func LoadProducts(path string) (*ProductsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read products file: %w", err)
	}

	var pf ProductsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse products file %s: %w", path, err)
	}

	if len(pf.Products) == 0 {
		return nil, fmt.Errorf("products file %s lists no products", path)
	}
	seen := make(map[string]bool)
	for i, p := range pf.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("products[%d] is missing an id", i)
		}
		if p.URL == "" {
			return nil, fmt.Errorf("product %s is missing a url", p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate product id %s", p.ID)
		}
		seen[p.ID] = true
	}

	return &pf, nil
}

// ToMonitorProduct converts an entry into the monitor's descriptor, applying
// the monitoring defaults for anything the entry leaves unset.
func (p ProductEntry) ToMonitorProduct(defaults MonitoringConfig) monitor.Product {
	interval := p.MonitorIntervalMS
	if interval <= 0 {
		interval = defaults.DefaultIntervalMS
	}
	return monitor.Product{
		ID:           p.ID,
		URL:          p.URL,
		Name:         p.Name,
		TargetPrice:  p.TargetPrice,
		MinStock:     p.MinStock,
		PollInterval: time.Duration(interval) * time.Millisecond,
		Timeout:      time.Duration(defaults.TimeoutMS) * time.Millisecond,
		MaxRetries:   defaults.MaxRetries,
	}
}
