package main

import (
	"context"
	"encoding/json"
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

	"github.com/saraya-erp/saraya-erp/cmd/saraya/cli"
	"github.com/saraya-erp/saraya-erp/internal/app"
	"github.com/saraya-erp/saraya-erp/internal/events"
	"github.com/saraya-erp/saraya-erp/internal/observability"
	"github.com/saraya-erp/saraya-erp/internal/platform/cache"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
	"github.com/saraya-erp/saraya-erp/internal/platform/migrate"
	"github.com/saraya-erp/saraya-erp/jobs"
)

const usage = `usage: saraya [command]

commands:
  serve                                  run the finance HTTP API (default)
  migrate                                apply pending schema migrations
  jobs trigger -job NAME [-day D] [-actor N] [-hospital N]
  jobs stats                             show queue depth
  events publish -type T -hospital N [-file F]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	switch args[0] {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		err = migrate.Run(cfg.PGDSN, cfg.MigrationsPath)
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args[1:]))
	case "events":
		os.Exit(runEvents(ctx, cfg, args[1:]))
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(args[0], slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		if err := migrate.Run(cfg.PGDSN, cfg.MigrationsPath); err != nil {
			return err
		}
		logger.Info("migrations applied", slog.String("path", cfg.MigrationsPath))
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	finance, err := app.NewFinance(cfg, pool, redisClient, metrics, logger)
	if err != nil {
		return err
	}

	inspector := asynq.NewInspector(cfg.Redis().Asynq())
	defer inspector.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Finance: finance.Handlers(logger),
		Jobs:    jobs.NewHandler(inspector, logger),
		Ready: map[string]app.Pinger{
			"postgres": app.PingFunc(pool.Ping),
			"redis": app.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	c := cli.NewJobsCLI(cfg.Redis().Asynq())
	defer c.Close()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		name := fs.String("job", "", "job name: bed-charges or gl-integrity")
		day := fs.String("day", "", "accrual day YYYY-MM-DD (bed-charges)")
		actor := fs.Int64("actor", 0, "actor id recorded on postings")
		hospital := fs.Int64("hospital", 0, "restrict to one hospital (gl-integrity)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		opts := cli.TriggerOptions{ActorID: *actor, HospitalID: *hospital}
		if *day != "" {
			parsed, err := time.Parse(time.DateOnly, *day)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid -day: %v\n", err)
				return 2
			}
			opts.Day = parsed
		}
		info, err := c.Trigger(ctx, *name, opts)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return 0
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}

func runEvents(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 || args[0] != "publish" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("events publish", flag.ContinueOnError)
	typ := fs.String("type", "", "event type, e.g. finance:invoice_issued")
	hospital := fs.Int64("hospital", 0, "hospital id")
	file := fs.String("file", "-", "payload JSON file, - for stdin")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	payload := os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		payload = f
	}

	publisher, closer, err := newPublisher(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closer()

	return cli.NewEventsCLI(publisher).PublishCommand(ctx, cli.PublishOptions{
		Type:       *typ,
		HospitalID: *hospital,
		Payload:    payload,
	})
}

// newPublisher returns the publisher for the configured transport.
func newPublisher(cfg *app.Config) (events.Publisher, func(), error) {
	switch cfg.EventTransport {
	case app.TransportKafka:
		p := events.NewKafkaPublisher(events.NewKafkaWriter(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}))
		return p, func() { _ = p.Close() }, nil
	case app.TransportAsynq:
		client := asynq.NewClient(cfg.Redis().Asynq())
		return events.NewAsynqPublisher(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported event transport %q", cfg.EventTransport)
	}
}
