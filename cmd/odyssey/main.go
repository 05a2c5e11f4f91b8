package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-procure/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-procure/internal/app"
	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
	"github.com/odyssey-erp/odyssey-procure/internal/idgen"
	"github.com/odyssey-erp/odyssey-procure/internal/observability"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	procurementhttp "github.com/odyssey-erp/odyssey-procure/internal/procurement/http"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/jobs"
)

const usage = `usage: odyssey [command]

commands:
  serve                          run the HTTP API (default)
  catalog validate --file PATH   check a catalog snapshot
  catalog seed --file PATH       replace the Postgres catalog with a snapshot
  jobs trigger NAME              enqueue a job (catalog:refresh)
  jobs stats                     print default queue stats`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "serve" {
		if err := serve(ctx, stop, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	switch args[0] {
	case "catalog":
		os.Exit(runCatalog(ctx, cfg, logger, args[1:]))
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args[1:]))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		p, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return err
		}
		pool = p
		defer pool.Close()
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	catalogSource, err := newCatalogSource(cfg, pool, redisClient, logger)
	if err != nil {
		return err
	}
	numbers, err := newNumberGenerator(cfg)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	publishers := procurement.Publishers{metrics}

	var jobHandler *jobs.Handler
	if cfg.JobsEnabled {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			return err
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		publishers = append(publishers, jobs.NewNotifier(jobClient))

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	deps := procurement.ServiceDeps{
		Repo:    procurement.NewMemoryStore(),
		Catalog: catalogSource,
		Numbers: numbers,
		Events:  publishers,
		Logger:  logger,
	}
	if cfg.AuditEnabled {
		deps.Audit = shared.NewAuditLogger(pool)
	}
	service := procurement.NewService(deps)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurementhttp.NewHandler(logger, service),
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("catalog", cfg.CatalogBackend),
			slog.String("numbers", cfg.NumberStrategy),
			slog.Bool("jobs", cfg.JobsEnabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func newCatalogSource(cfg *app.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*catalog.Cached, error) {
	var source catalog.Source
	switch cfg.CatalogBackend {
	case app.CatalogBackendPostgres:
		source = catalog.NewPostgres(pool)
	default:
		snap, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		if problems := snap.Problems(); len(problems) > 0 {
			return nil, fmt.Errorf("catalog %s: %d problem(s), first: %s", cfg.CatalogFile, len(problems), problems[0])
		}
		source = catalog.NewMemory(snap)
	}
	return catalog.NewCached(source, redisClient, cfg.CatalogCacheTTL, logger), nil
}

func newNumberGenerator(cfg *app.Config) (procurement.NumberGenerator, error) {
	if cfg.NumberStrategy == app.NumberStrategySnowflake {
		return idgen.NewSnowflake(cfg.SnowflakeNode)
	}
	return idgen.NewSequence(cfg.NumberWidth), nil
}

func runCatalog(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("catalog "+args[0], flag.ContinueOnError)
	file := fs.String("file", cfg.CatalogFile, "catalog snapshot (JSON)")
	jsonOut := fs.Bool("json", false, "print a JSON summary")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	opts := cli.CatalogOptions{File: *file, JSONOutput: *jsonOut}

	switch args[0] {
	case "validate":
		return cli.NewCatalogCLI(nil).ValidateCommand(ctx, opts)
	case "seed":
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		code := cli.NewCatalogCLI(catalog.NewPostgres(pool)).SeedCommand(ctx, opts)
		if code == 0 && cfg.JobsEnabled {
			if _, err := enqueueRefresh(ctx, cfg.RedisAddr); err != nil {
				logger.Warn("enqueue catalog refresh", slog.Any("error", err))
			}
		}
		return code
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func enqueueRefresh(ctx context.Context, redisAddr string) (*asynq.TaskInfo, error) {
	c, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Trigger(ctx, jobs.TaskCatalogRefresh)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	c, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer c.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: job name required")
			return 2
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		cli.PrintStats(os.Stdout, stats)
		scheduled, err := c.ListScheduled(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		for _, task := range scheduled {
			fmt.Printf(" scheduled %s id=%s next=%s\n", task.Type, task.ID, task.NextProcessAt.Format(time.RFC3339))
		}
		return 0
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}
