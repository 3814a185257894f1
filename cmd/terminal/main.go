package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"puntoventa/terminal/internal/catalog"
	"puntoventa/terminal/internal/config"
	"puntoventa/terminal/internal/httpapi"
	"puntoventa/terminal/internal/netstatus"
	"puntoventa/terminal/internal/service"
	"puntoventa/terminal/internal/store"
	"puntoventa/terminal/internal/store/memory"
	pgstore "puntoventa/terminal/internal/store/postgres"
	"puntoventa/terminal/internal/submit"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	defer openCancel()

	var repo store.Store
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(openCtx, cfg.DatabaseURL)
		if err != nil {
			// Offline features survive for this session only; a restart will
			// retry the durable store.
			log.Printf("local database unavailable (%v), degrading to in-memory store for this session", err)
			repo = memory.New()
		} else {
			repo = pg
			closers = append(closers, pg.Close)
			log.Println("store: postgres")
		}
	} else {
		repo = memory.New()
		log.Println("store: in-memory")
	}

	catalogCache := catalog.Cache(catalog.NoopCache{})
	if cfg.RedisAddr != "" {
		redisCache := catalog.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(openCtx); err != nil {
			log.Printf("redis unavailable (%v), using noop catalog cache", err)
		} else {
			catalogCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("catalog cache: redis")
		}
	} else {
		log.Println("catalog cache: noop")
	}

	monitor := netstatus.NewMonitor()

	var submitFn service.SubmitFunc
	var probe netstatus.ProbeFunc
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kafkaSubmitter := submit.NewKafkaSubmitter(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
		closers = append(closers, kafkaSubmitter.Close)
		submitFn = kafkaSubmitter.Submit
		log.Printf("submitter: kafka topic %s", cfg.KafkaOrderTopic)
	case cfg.RemoteOrderURL != "":
		httpSubmitter := submit.NewHTTPSubmitter(cfg.RemoteOrderURL, cfg.RemoteHealthURL, cfg.TerminalID, cfg.AuthSecret)
		submitFn = httpSubmitter.Submit
		probe = httpSubmitter.Probe
		log.Printf("submitter: http %s", cfg.RemoteOrderURL)
	default:
		log.Println("submitter: none configured, all checkouts will queue locally")
	}

	svc := service.New(repo, catalogCache, monitor, submitFn, time.Duration(cfg.CatalogTTLSeconds)*time.Second)
	if err := svc.LoadHeldCarts(ctx); err != nil {
		log.Printf("load held carts: %v", err)
	}
	if err := svc.LoadPendingOrders(ctx); err != nil {
		log.Printf("load pending orders: %v", err)
	}

	if probe != nil {
		watcher := netstatus.NewWatcher(monitor, probe, time.Duration(cfg.ProbeIntervalSeconds)*time.Second)
		go watcher.Run(ctx)
		go sweepOnReconnect(ctx, monitor, svc)
	}

	go retentionLoop(ctx, svc, cfg.SyncedRetentionDays)

	api := httpapi.New(svc, cfg.AllowedOrigin, cfg.ManagerPIN, cfg.SyncedRetentionDays)
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS terminal listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("terminal stopped")
}

// sweepOnReconnect runs a sync sweep each time the connectivity signal flips
// from offline to online. The sweep itself decides per order what still needs
// submitting; this goroutine only chooses when to start one.
func sweepOnReconnect(ctx context.Context, monitor *netstatus.Monitor, svc *service.Service) {
	flips, stop := monitor.Subscribe()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-flips:
			if !online {
				continue
			}
			report, err := svc.SyncPendingOrders(ctx, nil)
			if err != nil {
				log.Printf("reconnect sweep failed: %v", err)
				continue
			}
			log.Printf("reconnect sweep: %d attempted, %d synced, %d remaining",
				report.Attempted, report.Synced, report.Remaining)
		}
	}
}

func retentionLoop(ctx context.Context, svc *service.Service, retentionDays int) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			olderThan := time.Now().UTC().AddDate(0, 0, -retentionDays)
			pruned, err := svc.PruneSyncedOrders(ctx, olderThan)
			if err != nil {
				log.Printf("retention prune failed: %v", err)
				continue
			}
			if pruned > 0 {
				log.Printf("retention prune: removed %d synced orders", pruned)
			}
		}
	}
}
