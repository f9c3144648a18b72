// Command seed loads a category tree into the taxonomy PostgreSQL database.
// Without -file it loads the built-in sample taxonomy.
//
//	go run ./cmd/seed -file categories.json
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/config"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/seed"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/source/postgres"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/database"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
)

func main() {
	file := flag.String("file", "", "JSON seed file; the built-in taxonomy when empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("taxonomy-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *file, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, file string, log *slog.Logger) error {
	roots, err := loadTree(file)
	if err != nil {
		return err
	}

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, postgres.Migrations(), log); err != nil {
		return err
	}

	res, err := seed.New(postgres.New(pool), log).Run(ctx, roots)
	if err != nil {
		return err
	}
	log.Info("seed complete",
		slog.Int("created", res.Created),
		slog.Int("existing", res.Existing),
	)
	return nil
}

func loadTree(file string) ([]seed.Node, error) {
	if file == "" {
		return seed.Default()
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return seed.Parse(f)
}
