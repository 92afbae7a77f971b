package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	flag "github.com/spf13/pflag"

	"github.com/liamcoop/selection/internal/config"
	"github.com/liamcoop/selection/internal/logger"
)

// migrator is the part of *migrate.Migrate the commands use
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var (
		databaseURL    string
		migrationsPath string
		command        string
	)

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	if databaseURL == "" {
		cfg, err := config.LoadDatabase()
		if err != nil {
			logger.Fatal("database URL is required, use --database or DATABASE_URL", "error", err)
		}
		databaseURL = cfg.DatabaseURL
	}

	logger.Info("connecting to database", "migrations", migrationsPath)

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	if err := runCommand(m, command, flag.Args()); err != nil {
		m.Close()
		logger.Fatal("migration failed", "command", command, "error", err)
	}
}

func runCommand(m migrator, command string, args []string) error {
	switch command {
	case "up":
		logger.Info("running migrations up")
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations completed")

	case "down":
		logger.Info("rolling back migrations")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return fmt.Errorf("force requires a version number: --command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		logger.Info("forced version", "version", version)

	default:
		return fmt.Errorf("unknown command: %s (use: up, down, version, force)", command)
	}

	return nil
}
