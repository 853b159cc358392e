package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jeogo/casnos-sub001/internal/auth"
	"github.com/jeogo/casnos-sub001/internal/cache"
	"github.com/jeogo/casnos-sub001/internal/config"
	"github.com/jeogo/casnos-sub001/internal/discovery"
	"github.com/jeogo/casnos-sub001/internal/dispatch"
	"github.com/jeogo/casnos-sub001/internal/httpapi"
	"github.com/jeogo/casnos-sub001/internal/hub"
	"github.com/jeogo/casnos-sub001/internal/presence"
	"github.com/jeogo/casnos-sub001/internal/printing"
	"github.com/jeogo/casnos-sub001/internal/queue"
	"github.com/jeogo/casnos-sub001/internal/realtime"
	"github.com/jeogo/casnos-sub001/internal/reset"
	"github.com/jeogo/casnos-sub001/internal/store"
	"github.com/jeogo/casnos-sub001/internal/store/memory"
	"github.com/jeogo/casnos-sub001/internal/store/postgres"
	"github.com/jeogo/casnos-sub001/internal/telemetry"
	"github.com/jeogo/casnos-sub001/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var version = "1.0.0"

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup(cfg.ServerName, version)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	started := time.Now().UTC()

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()
	if service, created, err := st.EnsureDefaultService(ctx); err != nil {
		log.Fatalf("ensure default service: %v", err)
	} else if created {
		log.Printf("created default service id=%d name=%s", service.ID, service.Name)
	}

	redisCache, closeCache := openCache(ctx, cfg)
	defer closeCache()

	h := hub.New()
	dispatcher := dispatch.New(h, redisCache)
	authenticator := auth.New(auth.Options{
		KeyHash:  cfg.AdminKeyHash,
		Secret:   cfg.JWTSecret,
		TokenTTL: cfg.AdminTokenTTL,
	})
	if !authenticator.Enabled() {
		log.Printf("admin authentication disabled: ADMIN_KEY_HASH not set")
	}
	registry := presence.NewRegistry(st, h, dispatcher, presence.Options{
		StaleAfter:   cfg.PresenceStale,
		OnlineWindow: cfg.PresenceOnline,
		Cache:        redisCache,
		Verifier:     authenticator,
	})
	engine := queue.NewEngine(st, queue.Options{DedupeTTL: cfg.DedupeTTL})

	tempDir := cfg.PrintTempDir
	if tempDir == "" {
		tempDir = printing.DefaultTempDir()
	}
	printer, err := printing.NewPrinter(printing.PrinterConfig{
		Kind:       cfg.Printer,
		Command:    cfg.PrinterCommand,
		WebhookURL: cfg.PrintWebhook,
	})
	if err != nil {
		log.Fatalf("printer: %v", err)
	}
	committer := printing.NewCommitter(st, engine, printing.NewPDFRenderer(tempDir), printer, printing.Options{
		Timeout:     cfg.PrintTimeout,
		TempDir:     tempDir,
		CompanyName: cfg.CompanyName,
	})

	resetCfg, err := reset.LoadConfigFile(cfg.ResetConfigFile, reset.Config{
		Enabled:      cfg.ResetEnabled,
		ResetTickets: cfg.ResetTickets,
		ResetPDFs:    cfg.ResetPDFs,
		ResetCache:   cfg.ResetCache,
		KeepDays:     cfg.ResetKeepDays,
		ResetTime:    cfg.ResetTime,
	})
	if err != nil {
		log.Fatalf("reset config: %v", err)
	}
	resetOpts := reset.Options{
		Config:         resetCfg,
		ConfigFile:     cfg.ResetConfigFile,
		ArtifactDirs:   cfg.ArtifactDirs,
		LogDirs:        cfg.LogDirs,
		SafetyInterval: cfg.ResetSafetyInterval,
		Location:       cfg.Location,
		Temp:           committer,
		Dedupe:         engine,
	}
	if redisCache != nil {
		resetOpts.Cache = redisCache
	}
	scheduler := reset.NewScheduler(st, dispatcher, resetOpts)

	api := httpapi.NewHandler(httpapi.Deps{
		Store:    st,
		Queue:    engine,
		Printing: committer,
		Reset:    scheduler,
		Presence: registry,
		Events:   dispatcher,
		Auth:     authenticator,
		Clients:  h.ClientCount,
		Started:  started,
	})
	socket := realtime.NewServer(h, realtime.Deps{
		Tickets:  st,
		Queue:    engine,
		Presence: registry,
		Reset:    scheduler,
		Events:   dispatcher,
	}, realtime.Options{Location: cfg.Location, Started: started})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	// The socket endpoint sits outside the logging middleware, whose
	// response wrapper cannot be hijacked.
	mux := http.NewServeMux()
	mux.Handle(socket.Prefix()+"/", socket.Handler())
	mux.Handle("/", httpapi.LoggingMiddleware(limiter.Middleware(api.Routes())))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, cfg.ServerName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	servicePort, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Fatalf("invalid PORT %q: %v", cfg.Port, err)
	}
	responder := discovery.NewResponder(discovery.ResponderOptions{
		UDPPort:     cfg.UDPPort,
		ServicePort: servicePort,
		AdvertiseIP: cfg.AdvertiseIP,
	})
	discoveryUp := false
	if err := responder.Listen(); err != nil {
		log.Printf("discovery disabled: %v", err)
	} else {
		discoveryUp = true
		defer responder.Close()
		go func() {
			if err := responder.Serve(ctx); err != nil {
				log.Printf("discovery responder stopped: %v", err)
			}
		}()
	}

	jobs := []*worker.Job{
		{
			Name:     "presence-sweep",
			Interval: cfg.PresenceSweep,
			Run: func(ctx context.Context) error {
				if stale := registry.Sweep(ctx); len(stale) > 0 {
					log.Printf("presence sweep removed=%d devices=%v", len(stale), stale)
				}
				return nil
			},
		},
		{
			Name:     "queue-heartbeat",
			Interval: cfg.QueueHeartbeat,
			Run: func(ctx context.Context) error {
				return dispatcher.QueueHeartbeat(ctx, engine)
			},
		},
		{
			Name:     "devices-status",
			Interval: cfg.DevicesStatus,
			Run: func(ctx context.Context) error {
				dispatcher.Publish(ctx, registry.StatusEvent())
				return nil
			},
		},
		{
			Name:     "print-dedupe-cleanup",
			Interval: time.Minute,
			Run: func(ctx context.Context) error {
				engine.CleanupDedupe()
				return nil
			},
		},
		{
			Name:     "ratelimit-prune",
			Interval: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				limiter.Prune()
				return nil
			},
		},
	}
	if discoveryUp {
		jobs = append(jobs, &worker.Job{
			Name:     "discovery-announce",
			Interval: cfg.DiscoveryInterval,
			Run:      responder.Announce,
		})
	}
	for _, job := range jobs {
		go worker.Start(ctx, job)
	}
	go scheduler.Start(ctx)

	go func() {
		log.Printf("%s %s listening on %s (udp %d)", cfg.ServerName, version, server.Addr, cfg.UDPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		log.Printf("DB_DSN not set, using in-memory store")
		return memory.NewStore(), func() {}
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		log.Fatalf("db ping: %v", err)
	}
	return postgres.NewStore(pool), pool.Close
}

// openCache returns a nil cache when Redis is not configured or not
// reachable; every cache method treats nil as a no-op.
func openCache(ctx context.Context, cfg config.Config) (*cache.Cache, func()) {
	if cfg.RedisAddr == "" {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("redis unavailable, cache disabled: %v", err)
		_ = client.Close()
		return nil, func() {}
	}
	return cache.New(client, cfg.CachePrefix), func() { _ = client.Close() }
}
