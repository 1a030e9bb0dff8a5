// Command server runs the coach plan HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/coachplan/pgstore"
	"github.com/fitmarket/coachplans/pkg/config"
	"github.com/fitmarket/coachplans/pkg/httpserver"
	"github.com/fitmarket/coachplans/pkg/logger"
	"github.com/fitmarket/coachplans/pkg/mercadopago"
	"github.com/fitmarket/coachplans/pkg/pg"
	"github.com/fitmarket/coachplans/pkg/planapi"
	"github.com/fitmarket/coachplans/pkg/redis"
	"github.com/fitmarket/coachplans/pkg/requestid"
)

type settings struct {
	App         config.App
	PG          pg.Config
	Redis       redis.Config
	HTTP        httpserver.Config
	MercadoPago mercadopago.Config
	Sweep       coachplan.SweepConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg settings
	if err := errors.Join(
		config.Load(&cfg.App),
		config.Load(&cfg.PG),
		config.Load(&cfg.Redis),
		config.Load(&cfg.HTTP),
		config.Load(&cfg.MercadoPago),
		config.Load(&cfg.Sweep),
	); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.App.Env, cfg.App.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg.PG, log); err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)})
	}

	gateway := mercadopago.NewClient(cfg.MercadoPago, mercadopago.WithLogger(log))
	if !gateway.Configured() {
		log.WarnContext(ctx, "mercado pago access token not set, paid plans are unavailable")
	}

	svc := coachplan.NewService(coachplan.DefaultCatalog(), pgstore.New(pool), gateway,
		coachplan.WithLogger(log))

	api := planapi.New(svc,
		planapi.WithLogger(log),
		planapi.WithNotifications(gateway),
		planapi.WithReadinessChecks(2*time.Second, checks...),
	)
	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, api.Handler()) })

	if cfg.App.SweepInProcess {
		opts := []coachplan.SweeperOption{coachplan.WithSweepLogger(log)}
		if rdb != nil {
			opts = append(opts, coachplan.WithLocker(redis.NewLocker(rdb, "lock:")))
		}
		sweeper := coachplan.NewSweeper(svc, cfg.Sweep, opts...)
		g.Go(func() error {
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
