// Command sweeper periodically reconciles coach plans whose scheduled
// transition is due or whose active period has ended.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/coachplan/pgstore"
	"github.com/fitmarket/coachplans/pkg/config"
	"github.com/fitmarket/coachplans/pkg/logger"
	"github.com/fitmarket/coachplans/pkg/mercadopago"
	"github.com/fitmarket/coachplans/pkg/pg"
	"github.com/fitmarket/coachplans/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "sweeper: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		app      config.App
		pgCfg    pg.Config
		redisCfg redis.Config
		mpCfg    mercadopago.Config
		sweepCfg coachplan.SweepConfig
	)
	if err := errors.Join(
		config.Load(&app),
		config.Load(&pgCfg),
		config.Load(&redisCfg),
		config.Load(&mpCfg),
		config.Load(&sweepCfg),
	); err != nil {
		return err
	}

	log := logger.New(logger.WithEnvironment(app.Env, app.Name+"-sweeper"))
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
		return err
	}

	// promotions and expiries may cancel or re-price subscriptions
	gateway := mercadopago.NewClient(mpCfg, mercadopago.WithLogger(log))
	svc := coachplan.NewService(coachplan.DefaultCatalog(), pgstore.New(pool), gateway,
		coachplan.WithLogger(log))

	opts := []coachplan.SweeperOption{coachplan.WithSweepLogger(log)}
	if redisCfg.Enabled() {
		rdb, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, coachplan.WithLocker(redis.NewLocker(rdb, "lock:")))
	} else {
		log.WarnContext(ctx, "redis not configured, sweeping without a distributed lock")
	}

	return coachplan.NewSweeper(svc, sweepCfg, opts...).Run(ctx)
}
