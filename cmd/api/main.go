package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"authcore.org/internal/auth"
	"authcore.org/internal/config"
	"authcore.org/internal/grpcapi"
	"authcore.org/internal/httpapi"
	"authcore.org/internal/limiter"
	"authcore.org/internal/migrate"
	"authcore.org/internal/obs"
	"authcore.org/internal/store/memory"
	"authcore.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is a store that the readiness probes can ping.
type backend interface {
	auth.Store
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	catalog := auth.DefaultCatalog()
	if cfg.CatalogFile != "" {
		f, err := os.Open(cfg.CatalogFile)
		if err != nil {
			log.Fatalf("catalog: %v", err)
		}
		catalog, err = auth.LoadCatalog(f)
		_ = f.Close()
		if err != nil {
			log.Fatalf("catalog %s: %v", cfg.CatalogFile, err)
		}
	}
	if err := auth.Provision(ctx, store, catalog); err != nil {
		log.Fatalf("provision: %v", err)
	}

	svc, err := auth.NewService(store, cfg.ServiceOptions()...)
	if err != nil {
		log.Fatalf("service: %v", err)
	}
	if cfg.AdminEmail != "" {
		admin, err := svc.EnsureAdmin(ctx, auth.RegisterInput{Email: cfg.AdminEmail, Password: cfg.AdminPassword})
		if err != nil {
			log.Fatalf("admin: %v", err)
		}
		obs.Log("info", "admin_ready", map[string]any{"user_id": admin.ID, "email": admin.Email})
	}

	sweeper := auth.NewSweeper(store, cfg.SweepRetention, nil)
	hour, minute := cfg.SweepClock()
	go sweeper.Run(ctx, hour, minute)

	opts := httpapi.Options{
		Service:        svc,
		Ready:          store,
		Version:        version,
		RegisterWindow: cfg.RegisterWindow,
		LoginWindow:    cfg.LoginWindow,
		CORSOrigins:    cfg.CORSOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}
	if cfg.RequestRate > 0 {
		opts.Requests = limiter.NewLocal(rate.Limit(cfg.RequestRate), cfg.RequestBurst)
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		opts.Register = throttle(limiter.NewRedis(rdb, "authcore:register", cfg.RegisterMax, cfg.RegisterWindow), cfg.RegisterMax)
		opts.Login = throttle(limiter.NewRedis(rdb, "authcore:login", cfg.LoginMax, cfg.LoginWindow), cfg.LoginMax)
	} else {
		opts.Register = throttle(limiter.NewLocalWindow(cfg.RegisterMax, cfg.RegisterWindow), cfg.RegisterMax)
		opts.Login = throttle(limiter.NewLocalWindow(cfg.LoginMax, cfg.LoginWindow), cfg.LoginMax)
	}

	api, err := httpapi.New(opts)
	if err != nil {
		log.Fatalf("http api: %v", err)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := grpcapi.NewHealth(store)
	go health.Run(ctx, 10*time.Second)
	grpcSrv := grpcapi.NewServer(health)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	log.Printf("Starting authcore %s on %s (grpc %s)", version, srv.Addr, cfg.GRPCAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Printf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	log.Println("Stopped")
}

// openStore picks PostgreSQL when a DSN is configured and the in-memory
// store otherwise.
func openStore(ctx context.Context, cfg config.Config) (backend, func(), error) {
	if cfg.PGDSN == "" {
		log.Println("AUTHCORE_PG_DSN not set, using the in-memory store")
		return memory.New(), func() {}, nil
	}
	st, err := pg.Open(cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		applied, err := migrate.NewManager(st.DB()).Up(ctx)
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		for _, name := range applied {
			obs.Log("info", "migration_applied", map[string]any{"name": name})
		}
	}
	return st, func() { _ = st.Close() }, nil
}

// throttle disables a limit configured with a zero maximum.
func throttle(th limiter.Throttle, max int) limiter.Throttle {
	if max <= 0 {
		return limiter.Unlimited{}
	}
	return th
}
