package main

import (
	"flag"
	"fmt"
	"os"

	"raskhody/internal/cli"
	"raskhody/internal/config"
	"raskhody/internal/log"
	"raskhody/internal/storage"
	"raskhody/internal/storage/sqlite"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down or version")
	flag.Parse()

	cli.LoadEnvFile()
	// Only the storage settings matter here, so the transport is not validated.
	cfg := config.Load()
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentMigrate)

	dialect, dsn, err := target(cfg)
	if err != nil {
		logger.Error("No migrations for backend", log.FieldBackend, cfg.DataBackend, log.FieldError, err)
		os.Exit(1)
	}

	switch *command {
	case "up":
		err = storage.RunMigrations(dialect, dsn)
	case "down":
		err = storage.RollbackMigration(dialect, dsn)
	case "version":
		var (
			version   uint
			dirty, ok bool
		)
		version, dirty, ok, err = storage.MigrationVersion(dialect, dsn)
		if err == nil {
			if ok {
				fmt.Printf("version %d (dirty: %t)\n", version, dirty)
			} else {
				fmt.Println("no migrations applied")
			}
		}
	default:
		logger.Error("Unknown command", "command", *command)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Migration failed", log.FieldOperation, log.OpMigrate, "command", *command, log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Migration command completed", "command", *command, log.FieldBackend, cfg.DataBackend)
}

func target(cfg *config.Config) (dialect, dsn string, err error) {
	switch cfg.DataBackend {
	case "postgres":
		return storage.DialectPostgres, cfg.PostgresDSN(), nil
	case "sqlite":
		return storage.DialectSQLite, sqlite.DSN(cfg.SQLiteDBPath), nil
	default:
		return "", "", fmt.Errorf("backend %q has no schema", cfg.DataBackend)
	}
}
