package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func Validate(cfg Config) error {
	var errs []string

	if cfg.App.Port <= 0 || cfg.App.Port > 65535 {
		errs = append(errs, "app.port must be 1..65535")
	}

	switch cfg.Marketplace.Adapter {
	case "", "mock":
	case "http":
		if cfg.Marketplace.BaseURL == "" {
			errs = append(errs, "marketplace.base_url is required for the http adapter")
		}
	default:
		errs = append(errs, fmt.Sprintf("marketplace.adapter %q is not mock or http", cfg.Marketplace.Adapter))
	}
	if cfg.Marketplace.Pages < 0 {
		errs = append(errs, "marketplace.pages must be >= 0")
	}

	switch cfg.Reconcile.CleanupMode {
	case "", "delete", "supersede", "keep":
	default:
		errs = append(errs, fmt.Sprintf("reconcile.cleanup_mode %q is not delete, supersede or keep", cfg.Reconcile.CleanupMode))
	}

	for stage, size := range cfg.Pipeline.BatchSizes {
		if size < 0 {
			errs = append(errs, fmt.Sprintf("pipeline.batch_sizes.%s must be >= 0", stage))
		}
	}
	if cfg.Reaper.IntervalSeconds < 0 {
		errs = append(errs, "reaper.interval_seconds must be >= 0")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + joinLines(errs))
	}
	return nil
}

func SaveAtomic(path string, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	bak := path + ".bak"

	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}

	_ = os.Remove(bak)
	_ = os.Rename(path, bak)

	return os.Rename(tmp, path)
}

func joinLines(lines []string) string {
	out := ""
	for i, s := range lines {
		if i > 0 {
			out += "\n-"
		}
		out += s
	}
	return out
}
