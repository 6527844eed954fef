// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate [-direction down].
// STORE_DRIVER selects postgres (DATABASE_URL) or sqlite (SQLITE_PATH).
package main

import (
	"flag"
	"fmt"
	"os"

	"project-canvas-hub/internal/config"
	"project-canvas-hub/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var dsn string
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		dsn = cfg.DatabaseURL
	case config.DriverSQLite:
		dsn = cfg.SQLitePath
	default:
		fmt.Fprintln(os.Stderr, "STORE_DRIVER is memory; set DATABASE_URL or STORE_DRIVER=sqlite to migrate a database")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.StoreDriver, dsn, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
