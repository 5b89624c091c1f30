package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	persistlog "raidforge.ai/internal/persistence/log"
	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/clock"
	"raidforge.ai/internal/sim/raid"
	"raidforge.ai/internal/sim/tuning"
	"raidforge.ai/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	cats, err := catalogs.Load(filepath.Join(cfg.ConfigDir, "content"))
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", cfg.TuningPath)
		tune = tuning.Defaults()
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	// Optional read-model index; never on the engine's critical path.
	idx, err := openRuntimeIndex(cfg, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	store := raid.NewStore()
	snapDir := filepath.Join(cfg.DataDir, "snapshots")
	var baseTick uint64
	if cfg.LoadLatest {
		tick, ok, err := restoreLatest(store, snapDir, cats.Digest(), logger)
		if err != nil {
			logger.Fatalf("restore: %v", err)
		}
		if ok {
			baseTick = tick
		}
	}
	clk := clock.New(baseTick, tune.TickRateHz)

	results := persistlog.NewResultLogger(cfg.DataDir, func(err error) {
		logger.Printf("results log: %v", err)
	})
	defer results.Close()

	hub := ws.NewHub()
	var events raid.EventLogger = hub
	if !cfg.DisableEvents {
		eventLog := persistlog.NewEventLogger(cfg.DataDir)
		defer eventLog.Close()
		events = raid.TeeEvents(eventLog, hub)
	}

	var recorder raid.ResultRecorder = results
	if idx != nil {
		recorder = multiResults{a: results, b: idx}
	}
	engine := raid.NewEngine(cats, tune, store,
		raid.WithEventLogger(events),
		raid.WithResultRecorder(recorder),
		raid.WithLogger(log.New(os.Stdout, "[raid] ", log.LstdFlags|log.Lmicroseconds)),
	)

	snaps := &snapshotter{
		store:       store,
		clock:       clk,
		dir:         snapDir,
		keep:        cfg.SnapshotKeep,
		catalogsSHA: cats.Digest(),
		idx:         idx,
		log:         logger,
	}

	wsOpts := []ws.Option{ws.WithHub(hub)}
	if cfg.AuthToken != "" {
		wsOpts = append(wsOpts, ws.WithAuthToken(cfg.AuthToken))
	}
	wsLogger := log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsSource{engine: engine, clock: clk, hub: hub, idx: idx}.handler())
	(&queryAPI{engine: engine, clock: clk}).register(mux)
	mux.HandleFunc("/v1/ws", ws.NewServer(engine, clk, wsLogger, wsOpts...).Handler())
	if cfg.AdminHTTP {
		mux.HandleFunc("POST /admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			path, h, err := snaps.Take()
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": h.Tick, "path": path, "raids": h.Raids})
		}))
		mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
	} else {
		logger.Printf("admin endpoints disabled")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s tick=%d", cfg.Addr, clk.Tick())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return snaps.Run(gctx, cfg.snapshotInterval(tune.SnapshotEveryTicks, tune.TickRateHz))
	})
	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}
	logger.Printf("shutdown complete")
}
