// Package main is the entrypoint for the operations host (binary name "opshost").
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/morezero/operations-host/internal/config"
	"github.com/morezero/operations-host/internal/server"
	"github.com/morezero/operations-host/pkg/codec"
	"github.com/morezero/operations-host/pkg/db"
	"github.com/morezero/operations-host/pkg/manifest"
	"github.com/morezero/operations-host/pkg/metadata"
)

const usage = `Usage: opshost [command]
       opshost serve                Start the host (HTTP operations, tasks, optional COMMS bridge).
       opshost migrate up           Run journal database migrations.
       opshost migrate status       Show migration status.
       opshost ensure-db [name]     Create database if missing (default: the one in DATABASE_URL).
       opshost clear                Truncate the invocation journal; schema is preserved.
       opshost metadata [json|yaml] Print the metadata document of the built-in operations.

Commands:
  serve           (default) Start the operations host.
  migrate up      Run database migrations only.
  migrate status  Show applied and pending migrations.
  ensure-db       Create the database named in DATABASE_URL (or [name]) on the same server.
  clear           Truncate journal data; schema preserved.
  metadata        Print the metadata document without starting the host.

Environment: HTTP_ADDRS (default :8080), APPLICATION_PATH, MANIFEST_FILE, COMMS_ENABLED, COMMS_URL,
JOURNAL_ENABLED, DATABASE_URL, MIGRATION_PATH, JWT_SECRET, RATE_LIMIT_RPS. A .env file is loaded when present.
`

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("opshost migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("opshost migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(os.Stdout); err != nil {
				log.Fatalf("opshost migrate status: %v", err)
			}
		default:
			log.Fatalf("opshost migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("opshost clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := ""
		if len(args) > 1 {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("opshost ensure-db: %v", err)
		}
		return
	case "metadata":
		format := "json"
		if len(args) > 1 && args[1] != "" {
			format = args[1]
		}
		if err := runMetadata(os.Stdout, format); err != nil {
			log.Fatalf("opshost metadata: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("opshost: %v", err)
	}
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.ResolveMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(w io.Writer) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.ResolveMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	state, err := db.MigrationStatus(ctx, pool, migrations)
	if err != nil {
		return err
	}
	printMigrationState(w, state)
	return nil
}

func printMigrationState(w io.Writer, state *db.MigrationState) {
	for _, name := range state.Applied {
		fmt.Fprintf(w, "applied  %s\n", name)
	}
	for _, name := range state.Pending {
		fmt.Fprintf(w, "pending  %s\n", name)
	}
	fmt.Fprintf(w, "%d applied, %d pending\n", len(state.Applied), len(state.Pending))
}

func runClear() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearJournal(ctx, pool); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	targetURL, err := withDatabase(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database for %s is ready.\n", redact(targetURL))
	return nil
}

// withDatabase replaces the database name of rawURL when dbName is set.
func withDatabase(rawURL, dbName string) (string, error) {
	if dbName == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + strings.TrimPrefix(dbName, "/")
	return u.String(), nil
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "database"
	}
	return u.Redacted()
}

// runMetadata builds the host exactly as serve would and prints its
// metadata document.
func runMetadata(w io.Writer, format string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	m, err := manifest.Load(cfg.ManifestFile)
	if err != nil {
		return err
	}
	h, err := server.BuildHost(cfg, m)
	if err != nil {
		return err
	}

	var ser codec.Serializer
	switch strings.ToLower(format) {
	case "json":
		ser = codec.JSON
	case "yaml", "yml":
		ser = codec.YAML
	default:
		return fmt.Errorf("unknown format %q (use json, yaml)", format)
	}
	data, err := ser.Marshal(metadata.Build(h.Registry(), h.Config().Version))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(string(data), "\n"))
	return err
}
