package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/quickeats/internal/domain/catalog"
	"github.com/xenking/quickeats/internal/storage/postgres"
)

func main() {
	var (
		databaseURL   string
		catalogFile   string
		businessUsers string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/restaurants.json", "path to the restaurant catalog (.json or .json.gz)")
	flag.StringVar(&businessUsers, "business-users", "", "comma separated extra business user emails (or QE_SEED_BUSINESS_USERS env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if businessUsers == "" {
		businessUsers = os.Getenv("QE_SEED_BUSINESS_USERS")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, splitEmails(businessUsers)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func splitEmails(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func run(ctx context.Context, databaseURL, catalogFile string, extra []string) error {
	slog.Info("reading catalog", slog.String("path", catalogFile))

	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	users := postgres.NewBusinessUserRepository(pool)
	owners := postgres.NewOwnerRepository(pool, nil, zap.NewNop())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, r := range cat.Restaurants() {
		if r.Email == "" {
			slog.Info("skipping restaurant without contact", slog.String("name", r.Name))
			continue
		}
		g.Go(func() error {
			if err := users.Add(ctx, r.Email); err != nil {
				return errors.Wrapf(err, "add business user %s", r.Email)
			}
			if err := owners.Assign(ctx, r.Slug(), r.Email); err != nil {
				return errors.Wrapf(err, "assign owner of %s", r.Slug())
			}
			slog.Info("seeded restaurant owner", slog.String("restaurant", r.Slug()), slog.String("email", r.Email))
			return nil
		})
	}
	for _, email := range extra {
		g.Go(func() error {
			if err := users.Add(ctx, email); err != nil {
				return errors.Wrapf(err, "add business user %s", email)
			}
			slog.Info("seeded business user", slog.String("email", email))
			return nil
		})
	}

	return g.Wait()
}
