package httpapi

import "net/http"

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Health
	hh := HealthHandler{}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	// Jobs
	jh := JobsHandler{Store: d.Store, Hub: d.Hub, ReapNow: d.ReapNow}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))
	mux.HandleFunc("/jobs/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.GetByPath, // expects /jobs/{id}
	}))
	mux.HandleFunc("/jobs/reap", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: jh.Reap,
	}))

	// Pipeline
	ph := PipelineHandler{Pipeline: d.Pipeline, PipeStatus: d.PipeStatus}
	mux.HandleFunc("/pipeline/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.Status,
	}))
	mux.HandleFunc("/pipeline/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ph.Run,
	}))
	mux.HandleFunc("/pipeline/", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ph.RunStageByPath, // expects /pipeline/{stage}/run
	}))
	mux.HandleFunc("/reconcile/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ph.RunReconcile,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{CfgVal: d.CfgVal}
	mux.HandleFunc("/api/secrets/marketplace", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetMarketToken,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	// DB maintenance
	dh := DBHandler{DB: d.Store.DB()}
	mux.HandleFunc("/db/checkpoint", dh.Checkpoint)

	return mux
}
