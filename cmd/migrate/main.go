package main

import (
	"flag"
	"fmt"
	"os"

	"tgmedia/internal/migrations"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const usage = `usage: migrate [flags] up|down|version

flags:
`

func main() {
	driver := flag.String("driver", "", "Database driver: postgres or sqlite3 (default: postgres when a URL is given)")
	databaseURL := flag.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	dbPath := flag.String("db", "./tgmedia.db", "Path to the SQLite database file")
	steps := flag.Int("steps", 1, "Number of migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to load .env")
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	drv, dsn, err := resolveTarget(*driver, *databaseURL, *dbPath)
	if err != nil {
		logger.Fatalf("Invalid target: %v", err)
	}
	log := logger.WithField("driver", drv)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := migrations.Up(drv, dsn); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Info("Migrations applied")
	case "down":
		if err := migrations.Down(drv, dsn, *steps); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.WithField("steps", *steps).Info("Migrations rolled back")
	case "version":
		version, dirty, ok, err := migrations.Version(drv, dsn)
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		if !ok {
			fmt.Println("no migrations applied")
			return
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
	default:
		log.Errorf("Unknown command %q", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

// resolveTarget picks the driver and DSN. A database URL, from the flag or
// $DATABASE_URL, selects postgres unless a driver was given explicitly.
func resolveTarget(driver, databaseURL, dbPath string) (string, string, error) {
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if driver == "" {
		if databaseURL != "" {
			driver = migrations.DriverPostgres
		} else {
			driver = migrations.DriverSQLite
		}
	}

	switch driver {
	case migrations.DriverPostgres:
		if databaseURL == "" {
			return "", "", fmt.Errorf("postgres requires -database-url or DATABASE_URL")
		}
		return driver, databaseURL, nil
	case migrations.DriverSQLite:
		if dbPath == "" {
			return "", "", fmt.Errorf("sqlite3 requires -db")
		}
		return driver, dbPath, nil
	default:
		return "", "", fmt.Errorf("unsupported driver %q", driver)
	}
}
