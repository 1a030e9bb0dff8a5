// Package pg bootstraps PostgreSQL access with pgx/v5.
//
// Connect opens a pool with retry, Migrate applies goose migrations from an
// embedded filesystem, and Healthcheck adapts the pool to a readiness probe.
// The Is*Error helpers classify *pgconn.PgError values so stores can map
// constraint violations to domain errors.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
package pg
