package config

// WithDefaults fills in unset fields so a sparse user config still yields a
// runnable engine.
func WithDefaults(cfg Config) Config {
	out := cfg

	if out.App.Port == 0 {
		out.App.Port = 8471
	}
	if out.Marketplace.Name == "" {
		out.Marketplace.Name = "mock"
	}
	if out.Marketplace.Adapter == "" {
		out.Marketplace.Adapter = "mock"
	}
	if out.Marketplace.Pages == 0 {
		out.Marketplace.Pages = 3
	}
	if out.Marketplace.ReqPerSec == 0 {
		out.Marketplace.ReqPerSec = 1.0
	}
	if out.Marketplace.Burst == 0 {
		out.Marketplace.Burst = 2
	}

	if out.Pipeline.InterBatchDelayMs == 0 {
		out.Pipeline.InterBatchDelayMs = 500
	}
	if out.Pipeline.StageLimit == 0 {
		out.Pipeline.StageLimit = 10000
	}
	if out.Pipeline.BatchSizes == nil {
		out.Pipeline.BatchSizes = map[string]int{}
	}
	defaults := map[string]int{
		"capture":     50,
		"materialize": 200,
		"enrich":      50,
		"sanitize":    500,
		"reconcile":   100,
		"analyze":     1000,
	}
	for stage, size := range defaults {
		if out.Pipeline.BatchSizes[stage] == 0 {
			out.Pipeline.BatchSizes[stage] = size
		}
	}

	if out.Reconcile.Version == "" {
		out.Reconcile.Version = "1.0.0"
	}
	if out.Reconcile.CleanupMode == "" {
		out.Reconcile.CleanupMode = "supersede"
	}

	if out.Reaper.IntervalSeconds == 0 {
		out.Reaper.IntervalSeconds = 60
	}
	if out.Reaper.StaleAfterMinutes == 0 {
		out.Reaper.StaleAfterMinutes = 10
	}
	if out.Reaper.MaxRuntimeHours == 0 {
		out.Reaper.MaxRuntimeHours = 6
	}

	if out.Schedule.PipelineCron == "" {
		out.Schedule.PipelineCron = "@every 6h"
	}
	return out
}
