package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Marketplace struct {
		Name      string  `yaml:"name"`
		Adapter   string  `yaml:"adapter"` // mock | http
		BaseURL   string  `yaml:"base_url"`
		Query     string  `yaml:"query"`
		Pages     int     `yaml:"pages"`
		MinPrice  int     `yaml:"min_price"`
		ReqPerSec float64 `yaml:"req_per_sec"`
		Burst     int     `yaml:"burst"`
	} `yaml:"marketplace"`

	Pipeline struct {
		DatasetID         string         `yaml:"dataset_id"`
		InterBatchDelayMs int            `yaml:"inter_batch_delay_ms"`
		BatchSizes        map[string]int `yaml:"batch_sizes"` // per stage, clamped 50..1000
		StageLimit        int            `yaml:"stage_limit"` // max work items per stage run
	} `yaml:"pipeline"`

	Reconcile struct {
		Version     string `yaml:"version"`
		CleanupMode string `yaml:"cleanup_mode"` // delete | supersede | keep
	} `yaml:"reconcile"`

	Reaper struct {
		IntervalSeconds   int `yaml:"interval_seconds"`
		StaleAfterMinutes int `yaml:"stale_after_minutes"`
		MaxRuntimeHours   int `yaml:"max_runtime_hours"`
	} `yaml:"reaper"`

	Schedule struct {
		PipelineCron string `yaml:"pipeline_cron"` // robfig/cron spec, e.g. "@every 6h"
	} `yaml:"schedule"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
