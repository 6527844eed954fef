// seed inserts development sample data for local testing: two projects, a first canvas snapshot for
// the first one and, when JWT_PRIVATE_KEY is set, a dev access token.
// Idempotent: existing projects and non-empty histories are left alone.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	canvasdomain "project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/config"
	"project-canvas-hub/internal/db"
	"project-canvas-hub/internal/db/migrate"
	"project-canvas-hub/internal/history"
	historyrepo "project-canvas-hub/internal/history/repository"
	projectrepo "project-canvas-hub/internal/project/repository"
	"project-canvas-hub/internal/security"
)

const (
	devProjectID   = "dev-project-001"
	devProject2ID  = "dev-project-002"
	devRequesterID = "dev-user-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dsn := cfg.DatabaseURL
	switch cfg.StoreDriver {
	case config.DriverPostgres:
	case config.DriverSQLite:
		dsn = cfg.SQLitePath
	default:
		log.Fatal("STORE_DRIVER is memory; nothing to seed. Set DATABASE_URL or STORE_DRIVER=sqlite")
	}

	conn, dialect, err := db.Open(cfg.StoreDriver, dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	if cfg.StoreDriver == config.DriverSQLite {
		if err := migrate.Run(cfg.StoreDriver, dsn, "up"); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx := context.Background()
	projects := projectrepo.NewSQLRepository(conn, dialect)
	for _, p := range []struct{ id, name string }{
		{devProjectID, "Dev Canvas"},
		{devProject2ID, "Second Canvas"},
	} {
		err := projects.Create(ctx, p.id, p.name)
		switch {
		case err == nil:
			log.Printf("created project %s", p.id)
		case errors.Is(err, projectrepo.ErrDuplicate):
			log.Printf("project %s exists, skipping", p.id)
		default:
			log.Fatalf("create project %s: %v", p.id, err)
		}
	}

	ledger := history.NewLedger(historyrepo.NewSQLRepository(conn, dialect), cfg.LedgerMaxRetries)
	latest, err := ledger.Latest(ctx, devProjectID)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	if latest == nil {
		seq, err := ledger.Append(ctx, devProjectID, sampleSnapshot(), devRequesterID)
		if err != nil {
			log.Fatalf("append sample snapshot: %v", err)
		}
		log.Printf("project %s: sample snapshot at seq %d", devProjectID, seq)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Projects: %s, %s\n", devProjectID, devProject2ID)

	if cfg.JWTPrivateKey == "" {
		return
	}
	tokens, err := security.NewTokenProviderFromPEM(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	token, expiresAt, err := tokens.IssueAccess(devRequesterID, "Dev User")
	if err != nil {
		log.Fatalf("issue dev token: %v", err)
	}
	fmt.Printf("Dev access token for %s (expires %s):\n%s\n", devRequesterID, expiresAt.Format("2006-01-02 15:04:05Z07:00"), token)
}

func sampleSnapshot() canvasdomain.Snapshot {
	return canvasdomain.Snapshot{
		Nodes: []canvasdomain.Node{
			{ID: "start", Type: "input", Position: canvasdomain.Position{X: 0, Y: 0}},
			{ID: "review", Position: canvasdomain.Position{X: 200, Y: 0}},
			{ID: "done", Type: "output", Position: canvasdomain.Position{X: 400, Y: 0}},
		},
		Edges: []canvasdomain.Edge{
			{ID: "start-review", Source: "start", Target: "review"},
			{ID: "review-done", Source: "review", Target: "done", Label: "approved"},
		},
	}
}
