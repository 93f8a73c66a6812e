// Command server runs the feed reader as a standalone HTTP service:
// it loads configuration from the environment, opens the store, and
// starts the scheduler and HTTP server together, shutting both down
// gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sparrowreader/microsub/internal/api"
	"github.com/sparrowreader/microsub/internal/config"
	"github.com/sparrowreader/microsub/internal/fetch"
	"github.com/sparrowreader/microsub/internal/processor"
	"github.com/sparrowreader/microsub/internal/scheduler"
	"github.com/sparrowreader/microsub/internal/store"
	"github.com/sparrowreader/microsub/internal/webmention"
	"github.com/sparrowreader/microsub/internal/websub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open store (driver %s): %v", cfg.DatabaseDriver, err)
	}
	defer st.Close()
	st.SetMaxFullReadItems(cfg.MaxFullReadItemsPerChannel)

	var cache fetch.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := fetch.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SchedulerInterval)
		if err != nil {
			log.Printf("redis fetch cache unavailable, continuing without it: %v", err)
		} else {
			cache = redisCache
			defer redisCache.Close()
		}
	}

	fetcher := fetch.New(cfg.UserAgent, cache)

	proc := processor.New(fetcher, st, nil, cfg.FetchTimeout)

	callbackBase := cfg.PublicBaseURL + cfg.MountPath + "/websub/"
	subscriber := websub.New(st, proc, callbackBase, cfg.WebSubLeaseSeconds)
	proc.Subscriber = subscriber

	sched := scheduler.New(st, proc, cfg.BatchConcurrency, cfg.SchedulerInterval, cfg.WebSubLeaseRenewBefore)

	wmVerifier := webmention.New(fetcher, st, cfg.DiscoveryTimeout)

	log.Printf("running startup retention sweep")
	if err := st.CleanupAll(context.Background(), cfg.MaxFullReadItemsPerChannel); err != nil {
		log.Printf("startup cleanup sweep failed: %v", err)
	}

	sched.Start()
	defer sched.Stop()

	srv := api.New(&api.Server{
		Store:            st,
		Fetcher:          fetcher,
		Scheduler:        sched,
		Subscriber:       subscriber,
		Webmention:       wmVerifier,
		MountPath:        cfg.MountPath,
		DiscoveryTimeout: cfg.DiscoveryTimeout,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("listening on %s (mount %s, driver %s)", cfg.ListenAddr, cfg.MountPath, cfg.DatabaseDriver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
