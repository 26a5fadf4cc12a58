package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"marketpipe-engine/internal/config"
	"marketpipe-engine/internal/domain"
	"marketpipe-engine/internal/events"
	"marketpipe-engine/internal/httpapi"
	"marketpipe-engine/internal/ledger"
	"marketpipe-engine/internal/market"
	"marketpipe-engine/internal/pipeline"
	"marketpipe-engine/internal/scheduler"
	"marketpipe-engine/internal/secrets"
	"marketpipe-engine/internal/store"
)

func main() {
	// Engine data dir: use env if provided, else local folder.
	dataDir := os.Getenv("MARKETPIPE_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	// Load config and keep it reloadable
	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		return config.WithDefaults(cfg), nil
	}
	cfg, err := loadCfg()
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	dbPath := filepath.Join(dataDir, "marketpipe.db")
	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	if err := store.Migrate(st.DB()); err != nil {
		log.Fatal(err)
	}

	hub := events.NewHub()

	lg := ledger.New(st)
	lg.OnEvent = func(kind string, j *domain.Job) {
		hub.Publish(events.MakeEvent("", kind, 1, events.JobPayload{
			JobID:       j.ID,
			Type:        j.Type,
			Marketplace: j.Marketplace,
			Status:      string(j.Status),
			Found:       j.Stats.Found,
			New:         j.Stats.New,
			Updated:     j.Stats.Updated,
			Message:     j.LastUpdate,
		}))
	}

	reaper := ledger.NewReaper(st,
		time.Duration(cfg.Reaper.StaleAfterMinutes)*time.Minute,
		time.Duration(cfg.Reaper.MaxRuntimeHours)*time.Hour,
	)

	adapter, err := buildAdapter(cfg)
	if err != nil {
		log.Fatalf("marketplace adapter: %v", err)
	}

	pipe := pipeline.New(st, lg, adapter, pipelineOptions(cfg, dataDir))

	var pipeStatus atomic.Value
	pipeStatus.Store(httpapi.PipelineStatus{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	reapInterval := time.Duration(cfg.Reaper.IntervalSeconds) * time.Second
	if reapInterval <= 0 {
		reapInterval = time.Minute
	}
	g.Go(func() error {
		scheduler.Every(ctx, reapInterval, "reaper", func(ctx context.Context) error {
			ids, err := reaper.Run(ctx)
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				hub.Publish(events.MakeEvent("", events.JobsReaped, 1, map[string]any{"ids": ids}))
			}
			return nil
		})
		return nil
	})

	if spec := cfg.Schedule.PipelineCron; spec != "" {
		g.Go(func() error {
			return scheduler.Cron(ctx, spec, "pipeline", pipe.RunAll)
		})
	}

	mux := httpapi.NewMux(httpapi.Deps{
		Store:       st,
		Hub:         hub,
		Pipeline:    pipe,
		ReapNow:     reaper.Run,
		CfgVal:      &cfgVal,
		PipeStatus:  &pipeStatus,
		UserCfgPath: userCfgPath,
		LoadCfg:     loadCfg,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("engine listening on http://%s (db=%s)", addr, dbPath)

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.Recover, httpapi.RequestID, httpapi.AccessLog, httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}

	token, err := randomToken(16)
	if err != nil {
		log.Fatal(err)
	}
	mux.HandleFunc("/shutdown", shutdownHandler(&token, srv))
	log.Printf("shutdown token: %s", token)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

// buildAdapter picks the configured marketplace adapter. The http adapter
// loads its bearer token from the OS keychain; a missing token is fine,
// some marketplaces are public.
func buildAdapter(cfg config.Config) (market.Adapter, error) {
	switch cfg.Marketplace.Adapter {
	case "", "mock":
		return market.NewMockAdapter(), nil
	case "http":
		token, err := secrets.GetMarketToken(cfg.Marketplace.Name)
		if err != nil {
			log.Printf("[secrets] %v", err)
			token = ""
		}
		return market.NewHTTPAdapter(market.HTTPOptions{
			BaseURL:   cfg.Marketplace.BaseURL,
			ReqPerSec: cfg.Marketplace.ReqPerSec,
			Burst:     cfg.Marketplace.Burst,
			Token:     token,
		})
	}
	return nil, fmt.Errorf("unknown adapter %q", cfg.Marketplace.Adapter)
}

func pipelineOptions(cfg config.Config, dataDir string) pipeline.Options {
	return pipeline.Options{
		Marketplace:      cfg.Marketplace.Name,
		DatasetID:        cfg.Pipeline.DatasetID,
		Query:            cfg.Marketplace.Query,
		Pages:            cfg.Marketplace.Pages,
		MinPrice:         cfg.Marketplace.MinPrice,
		BatchSizes:       cfg.Pipeline.BatchSizes,
		InterBatchDelay:  time.Duration(cfg.Pipeline.InterBatchDelayMs) * time.Millisecond,
		StageLimit:       cfg.Pipeline.StageLimit,
		ReconcileVersion: cfg.Reconcile.Version,
		CleanupMode:      domain.CleanupMode(cfg.Reconcile.CleanupMode),
		LockPath:         filepath.Join(dataDir, "pipeline.lock"),
	}
}
