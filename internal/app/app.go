// Package app assembles MOC Studio from configuration: stores, domain
// services, the HTTP API and the gRPC risk service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/auth"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/catalog"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/config"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/httpapi"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/migrate"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/notify"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/seed"
	pgstore "github.com/celloweb-ai/MOC-Studio-BR/internal/store/pg"
	"github.com/celloweb-ai/MOC-Studio-BR/migrations"
)

// App is a wired service ready to serve.
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	services httpapi.Services
	api      *httpapi.API
	grpc     *httpapi.GRPCServer

	pg    *pgstore.Store
	redis *red.Client
}

type stores struct {
	users auth.UserStore
	mocs  moc.Store
	docs  catalog.DocumentStore
	audit audit.Store
}

// New builds the application. With no Postgres DSN everything runs in memory
// and, if cfg.SeedDemo is set, starts with the demo data set.
func New(ctx context.Context, cfg *config.Config, version string, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	authOpts := []auth.ServiceOption{
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithLogger(log),
	}
	if cfg.Auth.Issuer != "" {
		authOpts = append(authOpts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Redis.Addr != "" {
		a.redis = red.NewClient(&red.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		authOpts = append(authOpts, auth.WithRefreshStore(auth.NewRedisRefresh(a.redis, cfg.Redis.Prefix)))
	}

	svc, err := wire(st, cfg, log, authOpts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.services = svc

	probe := httpapi.ReadyProbe{Redis: a.redis}
	if a.pg != nil {
		probe.DB = a.pg.DB()
	}
	a.api, err = httpapi.New(svc, httpapi.Options{
		Version:      version,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		RateBurst:    cfg.RateLimit.Burst,
		RatePerSec:   cfg.RateLimit.PerSecond,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		Ready:        probe,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.grpc = httpapi.NewGRPCServer(probe)
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	cfg := a.cfg
	if cfg.Postgres.DSN == "" {
		st := stores{
			users: auth.NewInMemoryUsers(),
			mocs:  moc.NewInMemory(),
			docs:  catalog.NewInMemoryDocuments(),
			audit: audit.NewInMemory(),
		}
		if cfg.SeedDemo {
			counts, err := seed.Load(ctx, seed.Demo(), seed.Targets{Users: st.users, MOCs: st.mocs, Documents: st.docs})
			if err != nil {
				return stores{}, err
			}
			a.log.Info("demo_data_loaded", zap.Int("mocs", counts.MOCs), zap.Int("users", counts.Users), zap.Int("facilities", counts.Facilities))
		}
		return st, nil
	}

	pg, err := pgstore.Open(cfg.Postgres.DSN)
	if err != nil {
		return stores{}, err
	}
	a.pg = pg
	if err := pg.Ping(ctx); err != nil {
		return stores{}, fmt.Errorf("postgres ping: %w", err)
	}
	if cfg.Postgres.AutoMigrate {
		mgr := migrate.NewManager(pg.DB(), migrations.FS, migrations.MigrationsDir, migrations.SeedsDir)
		applied, err := mgr.Up(ctx)
		if err != nil {
			return stores{}, err
		}
		a.log.Info("migrations_applied", zap.Strings("files", applied))
		if cfg.SeedDemo {
			seeded, err := mgr.Seed(ctx)
			if err != nil {
				return stores{}, err
			}
			a.log.Info("seeds_applied", zap.Strings("files", seeded))
		}
	}
	return stores{users: pg.Users(), mocs: pg.MOCs(), docs: pg.Documents(), audit: pg.Audit()}, nil
}

// wire connects the domain services. The MOC service checks facilities
// through the catalog, which in turn links work orders back to MOCs.
func wire(st stores, cfg *config.Config, log *zap.Logger, authOpts []auth.ServiceOption) (httpapi.Services, error) {
	ledger, err := audit.NewLedger(st.audit, audit.WithLogger(log))
	if err != nil {
		return httpapi.Services{}, err
	}
	hub := notify.NewHub()
	policy, err := moc.PolicyByName(cfg.MOC.TransitionPolicy)
	if err != nil {
		return httpapi.Services{}, err
	}

	var cat *catalog.Catalog
	mocs, err := moc.NewService(st.mocs,
		moc.WithPolicy(policy),
		moc.WithAuditor(ledger),
		moc.WithNotifier(hub),
		moc.WithLogger(log),
		moc.WithFacilities(moc.FacilityCheckerFunc(func(ctx context.Context, id string) (bool, error) {
			return cat.FacilityExists(ctx, id)
		})),
	)
	if err != nil {
		return httpapi.Services{}, err
	}
	cat, err = catalog.New(st.docs, catalog.WithMOCs(mocs), catalog.WithAuditor(ledger), catalog.WithNotifier(hub))
	if err != nil {
		return httpapi.Services{}, err
	}

	sessions, err := auth.NewService(st.users, cfg.Auth.Secret, append(authOpts, auth.WithAuditor(ledger))...)
	if err != nil {
		return httpapi.Services{}, err
	}
	return httpapi.Services{MOCs: mocs, Catalog: cat, Audit: ledger, Auth: sessions, Events: hub}, nil
}

// Services exposes the wired domain services.
func (a *App) Services() httpapi.Services { return a.services }

// Handler is the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Run serves HTTP and gRPC until ctx is cancelled, then shuts both down
// within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.api.Handler(),
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv := grpc.NewServer()
	a.grpc.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http_listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if a.cfg.GRPC.Addr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			a.log.Info("grpc_listening", zap.String("addr", a.cfg.GRPC.Addr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}
		return err
	})
	return g.Wait()
}

// Close releases the backing connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis_close_failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.log.Warn("postgres_close_failed", zap.Error(err))
		}
	}
}
