package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/restset/internal/config"
	"github.com/claude/restset/internal/importer"
	"github.com/claude/restset/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	seedPath := flag.String("path", "", "seed file or directory of *.json / *.json.gz files (required)")
	login := flag.String("login", "local", "login of the user who will own the imported workouts")
	dryRun := flag.Bool("dry-run", false, "report counts without inserting into database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *seedPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: restset-import -config config.yaml -path seed.json [-login user] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*seedPath); err != nil {
		log.Error("seed path does not exist", "path", *seedPath)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Error("importing needs the postgres driver; the memory store does not outlive this process")
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	}

	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	userID, err := db.GetOrCreateUser(ctx, *login, *login)
	if err != nil {
		log.Error("resolving user failed", "login", *login, "error", err)
		os.Exit(1)
	}

	imp := importer.New(db, log, *dryRun)
	stats, err := imp.Import(ctx, userID, *seedPath)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_errored", stats.FilesErrored,
		"workouts_received", stats.WorkoutsReceived,
		"workouts_inserted", stats.WorkoutsInserted,
		"workouts_duplicated", stats.WorkoutsDuplicated,
		"workouts_invalid", stats.WorkoutsInvalid,
		"exercises_inserted", stats.ExercisesInserted,
	)
}
