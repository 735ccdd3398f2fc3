package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/dairyflow/backend/internal/infrastructure/config"
	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"github.com/dairyflow/backend/internal/infrastructure/migration"
	"github.com/dairyflow/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

func main() {
	var (
		migrationsPath string
		logLevel       string
	)

	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (default: the migrations compiled into this binary)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(args, migrationsPath, log); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
		}
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

var errUsage = errors.New("invalid usage")

func run(args []string, migrationsPath string, log *zap.Logger) error {
	command := args[0]

	// create and list work on files only
	switch command {
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("%w: migrate create <name> [description]", errUsage)
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(sourceDir(migrationsPath), args[1], description)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil

	case "list":
		found, err := migration.ListMigrations(sourceDir(migrationsPath))
		if err != nil {
			return err
		}
		if len(found) == 0 {
			log.Info("No migrations found")
			return nil
		}
		for _, m := range found {
			suffix := ""
			if !m.HasDown {
				suffix = " (no down file)"
			}
			fmt.Printf("  - %s%s\n", m, suffix)
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	var m *migration.Migrator
	if migrationsPath == "" {
		log.Info("Using embedded migrations")
		m, err = migration.NewEmbedded(db, migrations.FS, log)
	} else {
		abs, absErr := filepath.Abs(migrationsPath)
		if absErr != nil {
			return absErr
		}
		log.Info("Using migrations directory", zap.String("path", abs))
		m, err = migration.New(db, abs, log)
	}
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		return m.Up()

	case "down":
		return m.Down()

	case "step":
		if len(args) < 2 {
			return fmt.Errorf("%w: migrate step <n>", errUsage)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: step count %q", errUsage, args[1])
		}
		return m.Steps(n)

	case "goto":
		if len(args) < 2 {
			return fmt.Errorf("%w: migrate goto <version>", errUsage)
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: version %q", errUsage, args[1])
		}
		return m.GoTo(uint(version))

	case "version":
		st, err := m.Status()
		if err != nil {
			return err
		}
		if !st.Applied {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version",
			zap.Uint("version", st.Version),
			zap.Bool("dirty", st.Dirty),
		)
		return nil

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("%w: migrate force <version>", errUsage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: version %q", errUsage, args[1])
		}
		return m.Force(version)

	case "drop":
		if !slices.Contains(args[1:], "-confirm") && !slices.Contains(args[1:], "--confirm") {
			return fmt.Errorf("%w: drop needs -confirm", errUsage)
		}
		return m.Drop()
	}

	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}

// sourceDir is where create and list look when no -path is given
func sourceDir(migrationsPath string) string {
	if migrationsPath != "" {
		return migrationsPath
	}
	return defaultMigrationsPath
}

func printUsage() {
	fmt.Println(`Dairy ledger schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version (repairs a dirty schema)
  drop -confirm         Drop all database objects
  create <name> [desc]  Create the next numbered migration pair
  list                  List migrations on disk

Flags:
  -path string          Migrations directory (default: embedded migrations;
                        create/list use ./migrations)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables (also read from .env):
  DAIRY_DATABASE_HOST, DAIRY_DATABASE_PORT, DAIRY_DATABASE_USER,
  DAIRY_DATABASE_PASSWORD, DAIRY_DATABASE_DBNAME, DAIRY_DATABASE_SSLMODE

Examples:
  migrate up
  migrate step -1
  migrate create add_batch_location "Storage location on batches"
  migrate version`)
}
